// Package realtime is the consumer-facing side of the sync client.
//
// A Client owns one Connection Manager and one Subscription Registry and is
// shared by every consumer in the process. Consumers either subscribe
// directly, or use Sync to bind a handler and an optional refresh callback
// for the lifetime of a context.
//
// Usage:
//
//	provider := realtime.NewProvider(cfg, logger)
//	client := provider.Client()
//	client.EnsureConnected()
//
//	binding, err := client.Sync(ctx, model.Entity("project"), onUpdate, refetch)
//	if err != nil {
//		return err
//	}
//	defer binding.Close()
package realtime
