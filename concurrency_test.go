package chatman

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestConcurrency_MultipleSenders(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	mustCreate(t, svc, "recipient")

	const numSenders = 10
	const messagesPerSender = 5

	var wg sync.WaitGroup
	sendErrs := make(chan error, numSenders*messagesPerSender)

	for i := 0; i < numSenders; i++ {
		wg.Add(1)
		go func(senderNum int) {
			defer wg.Done()
			sender := fmt.Sprintf("sender%d", senderNum)
			for j := 0; j < messagesPerSender; j++ {
				_, err := svc.Send(ctx, SendRequest{
					SenderUsername:    sender,
					RecipientUsername: "recipient",
					Body:              fmt.Sprintf("message %d", j),
				})
				if err != nil {
					sendErrs <- err
				}
			}
		}(i)
	}

	wg.Wait()
	close(sendErrs)

	for err := range sendErrs {
		t.Errorf("send error: %v", err)
	}

	count, err := svc.PendingCount(ctx, "recipient")
	if err != nil {
		t.Fatalf("pending count failed: %v", err)
	}
	if count != numSenders*messagesPerSender {
		t.Errorf("expected %d pending messages, got %d", numSenders*messagesPerSender, count)
	}
}

func TestConcurrency_DrainWhileSending(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	mustCreate(t, svc, "bob")
	mustLogIn(t, svc, "bob")

	const total = 100

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			if _, err := svc.Send(ctx, SendRequest{
				SenderUsername:    "alice",
				RecipientUsername: "bob",
				Body:              fmt.Sprintf("message %d", i),
			}); err != nil {
				t.Errorf("send %d failed: %v", i, err)
				return
			}
		}
	}()

	// Drain concurrently with the sender; every message must be seen
	// exactly once across all drains.
	seen := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for seen < total {
			msgs, err := svc.Deliver(ctx, DeliverRequest{Username: "bob", LoggedIn: true})
			if err != nil {
				t.Errorf("deliver failed: %v", err)
				return
			}
			seen += len(msgs)
			if len(msgs) > 0 {
				if _, err := svc.Acknowledge(ctx, Refs(msgs)); err != nil {
					t.Errorf("acknowledge failed: %v", err)
					return
				}
			}
		}
	}()

	wg.Wait()
	<-done

	if seen != total {
		t.Errorf("expected %d messages delivered, got %d", total, seen)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingMessages != 0 || stats.DeliveredMessages != 0 {
		t.Errorf("expected empty mailbox, got %d pending %d delivered",
			stats.PendingMessages, stats.DeliveredMessages)
	}
}

func TestConcurrency_AccountOperations(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	const numAccounts = 20

	var wg sync.WaitGroup
	for i := 0; i < numAccounts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			username := fmt.Sprintf("user%d", n)
			if _, err := svc.CreateAccount(ctx, username); err != nil {
				t.Errorf("create %s failed: %v", username, err)
				return
			}
			if err := svc.LogIn(ctx, username); err != nil {
				t.Errorf("login %s failed: %v", username, err)
			}
		}(i)
	}
	wg.Wait()

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Accounts != numAccounts {
		t.Errorf("expected %d accounts, got %d", numAccounts, stats.Accounts)
	}
	if stats.LoggedIn != numAccounts {
		t.Errorf("expected %d logged in, got %d", numAccounts, stats.LoggedIn)
	}
}

func TestConcurrency_SingleLoginWins(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	mustCreate(t, svc, "alice")

	const attempts = 10

	var wg sync.WaitGroup
	successes := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.LogIn(ctx, "alice"); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	var wins int
	for range successes {
		wins++
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 login to win, got %d", wins)
	}
}
