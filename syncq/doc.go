// Package syncq provides hand-off structures built on the recursive mutex
// in package lock.
//
// # Queue
//
// Queue is an unbounded FIFO for passing commands from any goroutine to a
// consumer that blocks in Dequeue:
//
//	q := syncq.NewQueue[Command](lock.WithName("commands"))
//	go func() {
//	    for {
//	        cmd, ok := q.Dequeue()
//	        if !ok {
//	            return // closed and drained
//	        }
//	        cmd.Apply()
//	    }
//	}()
//	_ = q.Enqueue(Command{...})
//	q.Close()
//
// # Ring
//
// Ring is a fixed set of buffers shared by one producer and one consumer.
// Each side holds a Swapper positioned on a slot; Swap publishes the
// current slot to the other side and waits until the next slot is handed
// back:
//
//	ring := syncq.NewRing[Frame](2)
//	w, r := ring.Writer(), ring.Reader()
//
//	// producer              // consumer
//	fill(w.Get())            buf := r.Swap(syncq.SwapRead)
//	w.Swap(syncq.SwapWrite)  play(buf)
//
// A producer never writes a slot the consumer is reading and the consumer
// never reads a slot twice.
package syncq
