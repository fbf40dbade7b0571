// Package buffer provides the unbounded FIFO queue that decouples the single
// stream writer from its readers.
//
// A Buffer never blocks on Add, so a slow or stalled consumer cannot hold up
// the producer. Readers block in Next until an item arrives or the buffer is
// closed. CloseWrite lets readers drain what is left and then observe
// ErrIteratorDone; CloseWithError drops pending items and fails readers
// immediately.
//
//	buf := buffer.N[Event](16)
//	go func() {
//		defer buf.CloseWrite()
//		buf.Add(evt)
//	}()
//	for {
//		evt, err := buf.Next()
//		if errors.Is(err, buffer.ErrIteratorDone) {
//			break
//		}
//	}
package buffer
