package client

import (
	"cmp"
	"slices"

	"github.com/tukib/dtec-messenger-electron/internal/models"
)

// MergeHistory combines messages received from the server with the locally
// kept copies of sent messages into one timeline ordered by time. Entries
// with equal times keep their input order, received before sent. A message
// that cannot be decrypted is kept with Err set.
func MergeHistory(received []models.Message, sent []models.OutgoingMessage, decrypt func(string) (string, error)) []Entry {
	entries := make([]Entry, 0, len(received)+len(sent))
	for _, m := range received {
		e := Entry{ID: m.ID, To: m.To, From: m.From, Time: m.Time}
		e.Content, e.Err = decrypt(m.Content)
		entries = append(entries, e)
	}
	for _, m := range sent {
		entries = append(entries, Entry{
			ID:       m.ID,
			To:       m.To,
			From:     m.From,
			Time:     m.Time,
			Content:  m.Content,
			Outgoing: true,
		})
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Time, b.Time)
	})
	return entries
}
