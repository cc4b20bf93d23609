package lock_test

import (
	"errors"
	"fmt"

	"github.com/kolkov/reclock/lock"
)

type bus struct {
	mu     lock.Mutex
	volume float64
	log    []string
}

// setVolume must be callable both from outside and from inside tick.
func (b *bus) setVolume(v float64) error {
	return lock.Do(&b.mu, func() error {
		b.volume = v
		b.log = append(b.log, fmt.Sprintf("volume=%.1f", v))
		return nil
	})
}

func (b *bus) tick(commands []float64) error {
	g, err := lock.Scope(&b.mu)
	if err != nil {
		return err
	}
	defer g.Release()

	for _, c := range commands {
		// Re-enters b.mu.
		if err := b.setVolume(c); err != nil {
			return err
		}
	}
	return nil
}

func Example() {
	var b bus
	if err := b.tick([]float64{0.5, 0.8}); err != nil {
		fmt.Println(err)
	}
	fmt.Println(b.log)
	// Output: [volume=0.5 volume=0.8]
}

func ExampleMutex_TryLock() {
	var mu lock.Mutex

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		mu.Lock()
		close(held)
		<-release
		mu.Unlock()
	}()
	<-held

	fmt.Println("acquired while held elsewhere:", mu.TryLock())
	close(release)
	<-done
	fmt.Println("acquired after release:", mu.TryLock())
	mu.Unlock()
	// Output:
	// acquired while held elsewhere: false
	// acquired after release: true
}

func ExampleScope() {
	mu := lock.New(lock.WithName("table"))
	_ = mu.Close()

	_, err := lock.Scope(mu)
	fmt.Println(errors.Is(err, lock.ErrClosed))
	// Output: true
}
