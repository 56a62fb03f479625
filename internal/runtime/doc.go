// Package runtime wires storage, config and the event queue subsystem
// into a single evbus node. One Runtime exists per process; servers and
// services receive it by injection.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	rt.Broadcaster().Publish(ctx, events.MustNew("CheckResult"))
package runtime
