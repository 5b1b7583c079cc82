package server

import "chatman"

// Wire types mirror the RPC JSON contract. Every response carries an
// "error" field; the empty string means success.

// Account is the wire shape of a registered account.
type Account struct {
	LoggedIn bool   `json:"logged_in"`
	Username string `json:"username"`
}

// Message is the wire shape of a stored message.
type Message struct {
	Delivered         bool   `json:"delivered"`
	Message           string `json:"message"`
	RecipientLoggedIn bool   `json:"recipient_logged_in"`
	RecipientUsername string `json:"recipient_username"`
	SenderUsername    string `json:"sender_username"`
	Time              int64  `json:"time"`
}

// CreateAccountRequest registers a new account.
type CreateAccountRequest struct {
	Username string `json:"username"`
}

// LogInAccountRequest marks an account logged in.
type LogInAccountRequest struct {
	Username string `json:"username"`
}

// LogOutAccountRequest marks an account logged out.
type LogOutAccountRequest struct {
	Username string `json:"username"`
}

// DeleteAccountRequest removes an account and its mailbox.
type DeleteAccountRequest struct {
	Username string `json:"username"`
}

// ListAccountsRequest filters accounts by wildcard pattern. An empty
// pattern lists everything.
type ListAccountsRequest struct {
	TextWildcard string `json:"text_wildcard"`
}

// SendMessageRequest queues a message for a recipient.
type SendMessageRequest struct {
	Message           string `json:"message"`
	RecipientUsername string `json:"recipient_username"`
	SenderUsername    string `json:"sender_username"`
}

// DeliverUndeliveredMessagesRequest drains a recipient's pending
// messages. LoggedIn is the client's assertion about its own session
// and must match the server's view.
type DeliverUndeliveredMessagesRequest struct {
	LoggedIn bool   `json:"logged_in"`
	Username string `json:"username"`
}

// AcknowledgeMessagesRequest removes delivered messages.
type AcknowledgeMessagesRequest struct {
	Messages []Message `json:"messages"`
}

// ErrorResponse is the bare response for operations that return only
// an error field.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListAccountsResponse carries the matched accounts.
type ListAccountsResponse struct {
	Error    string    `json:"error"`
	Accounts []Account `json:"accounts"`
}

// DeliverUndeliveredMessagesResponse carries the drained messages.
type DeliverUndeliveredMessagesResponse struct {
	Error    string    `json:"error"`
	Messages []Message `json:"messages"`
}

func toWireAccounts(accounts []chatman.Account) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, Account{Username: a.Username, LoggedIn: a.LoggedIn})
	}
	return out
}

func toWireMessages(msgs []chatman.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{
			Delivered:         m.Delivered,
			Message:           m.Body,
			RecipientLoggedIn: m.RecipientLoggedIn,
			RecipientUsername: m.RecipientUsername,
			SenderUsername:    m.SenderUsername,
			Time:              m.Time,
		})
	}
	return out
}

func refsFromWire(msgs []Message) []chatman.MessageRef {
	refs := make([]chatman.MessageRef, 0, len(msgs))
	for _, m := range msgs {
		refs = append(refs, chatman.MessageRef{
			SenderUsername:    m.SenderUsername,
			RecipientUsername: m.RecipientUsername,
			Body:              m.Message,
			Time:              m.Time,
		})
	}
	return refs
}
