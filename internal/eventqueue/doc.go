// Package eventqueue implements named, filterable event queues with
// per-subscriber FIFOs, the process-wide queue registry and the
// broadcaster that routes published events to them.
//
// A subscriber is provisioned through Registry.Acquire and drains its
// FIFO with Queue.WaitForEventContext:
//
//	q := reg.Acquire("q1", cid, []string{"CheckResult"}, nil)
//	defer func() {
//		q.RemoveClient(cid)
//		reg.UnregisterIfUnused("q1", q)
//	}()
//	for {
//		ev, ok := q.WaitForEventContext(ctx, cid, 5*time.Second)
//		...
//	}
package eventqueue
