// Package async provides safe concurrent execution primitives for background tasks.
//
// # Key Functions
//
// SafeGo runs a function in a goroutine with panic recovery, a timeout and error logging:
//
//	async.SafeGo(context.WithoutCancel(ctx), 10*time.Second, "notify", func(ctx context.Context) error {
//		return dispatcher.Dispatch(ctx, n)
//	})
//
// Batch processes a slice concurrently with bounded parallelism and collects errors:
//
//	errs := async.Batch(ctx, keys, 4, "delete assets", 10*time.Second, func(ctx context.Context, key string) error {
//		return store.Delete(ctx, key)
//	})
//
// # Related Packages
//
//   - pkg/notify: AsyncDispatcher uses SafeGo so delivery never blocks a transition
//   - pkg/content: best-effort asset removal uses Batch
package async
