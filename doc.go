// Package chatman provides a store-and-forward chat engine.
//
// Accounts register under a unique username and toggle a single login
// flag. Messages sent to an account queue in its mailbox until the
// account drains them; drained messages stay put, marked delivered,
// until the recipient acknowledges them. A crash between drain and
// acknowledgment therefore redelivers rather than loses.
//
// # Basic Usage
//
//	store := memory.New()
//
//	svc, err := chatman.NewService(
//	    chatman.WithStore(store),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := svc.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	svc.CreateAccount(ctx, "alice")
//	svc.CreateAccount(ctx, "bob")
//	svc.LogIn(ctx, "alice")
//
//	svc.Send(ctx, chatman.SendRequest{
//	    SenderUsername:    "alice",
//	    RecipientUsername: "bob",
//	    Body:              "hello",
//	})
//
//	svc.LogIn(ctx, "bob")
//	msgs, _ := svc.Deliver(ctx, chatman.DeliverRequest{Username: "bob", LoggedIn: true})
//	svc.Acknowledge(ctx, chatman.Refs(msgs))
//
// # Storage
//
// The authoritative state lives in store/memory. The snapshot package
// adds durable load/save behind a small Persister contract, with
// backends for bbolt, PostgreSQL, MongoDB, S3 and GCS. Pass one via
// WithSnapshotPersister; Connect() restores the latest snapshot and a
// background ticker keeps it fresh.
//
// # Events
//
// The engine publishes typed events for account and message lifecycle
// changes using github.com/rbaliyan/event/v3. Pass WithRedisClient or
// WithEventTransport to publish over a real transport; the default is
// noop. Subscribe via the Events() accessor:
//
//	svc.Events().MessageQueued.Subscribe(ctx, handler)
//	svc.Events().MessagesDelivered.Subscribe(ctx, handler)
package chatman
