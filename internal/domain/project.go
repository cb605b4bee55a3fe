package domain

import (
	"time"

	"github.com/google/uuid"
)

type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusFinished ProjectStatus = "finished"
	ProjectStatusArchived ProjectStatus = "archived"
)

// Project is read-only from the bot's point of view; projects are created and
// managed in the web app.
type Project struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Name        string
	Tag         string
	Status      ProjectStatus
	ClientName  string
	ClientPhone string
	ShareToken  string
	CreatedAt   time.Time
}

// Link binds a WhatsApp phone number to an account.
type Link struct {
	PhoneNumber string
	AccountID   uuid.UUID
	ContactName string
	CreatedAt   time.Time
}

// LinkCode is a short-lived code generated in the web app and claimed over
// chat with the VINCULAR command.
type LinkCode struct {
	Code      string
	AccountID uuid.UUID
	CreatedAt time.Time
}

// LinkCodeTTL is how long a generated code stays claimable.
const LinkCodeTTL = 10 * time.Minute
