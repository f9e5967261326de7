// Package herald dispatches signed, retried webhooks for user events.
//
// Herald is a library. Import it into your application to get user-owned
// webhook subscriptions, a catalog of known event types, and delivery with
// HMAC-SHA256 signatures, exponential backoff and one durable record per
// dispatch.
//
// Dispatch never blocks the calling request on a webhook target: it
// validates the event, builds the payload envelope and hands a task to a
// queue. A worker pool resolves the user's subscriptions and runs one
// independent attempt loop per subscription.
//
// Quick start:
//
//	h, err := herald.New(
//	    herald.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := h.RegisterDefaultEventTypes(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	h.Start(ctx)
//	defer h.Stop(ctx)
//
//	sub, _ := h.Subscriptions().Create(ctx, subscription.Input{
//	    UserID: "user_123",
//	    URL:    "https://example.com/hooks",
//	    Events: []string{catalog.EventGenerationCompleted},
//	    GenerateSecret: true,
//	})
//
//	h.Dispatch(ctx, "user_123", catalog.EventGenerationCompleted, map[string]any{
//	    "generation_id": "gen_01h...",
//	})
package herald
