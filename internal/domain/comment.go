package domain

import "time"

// Comment is an append-only entry in a ticket thread. Comments belong to
// exactly one ticket; ordering is by CreatedAt, ties broken by Seq.
type Comment struct {
	ID         string
	TicketID   string
	AuthorID   string
	Content    string
	IsInternal bool
	Seq        int64
	CreatedAt  time.Time
}
