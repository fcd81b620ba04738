package queue

import (
	"fmt"
	"strings"
	"time"
)

// Receiver identifies one recipient of a notification.
type Receiver struct {
	UserID string `json:"UserId"`
}

// PushNotification is the broker payload for push-only delivery. Large
// receiver lists are split into chunks before publishing; every chunk shares
// the same notification id.
type PushNotification struct {
	NotificationID string     `json:"notificationId"`
	Receivers      []Receiver `json:"Receivers"`
	IsEmail        bool       `json:"isEmail"`
}

func (m PushNotification) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	for i, r := range m.Receivers {
		if strings.TrimSpace(r.UserID) == "" {
			return fmt.Errorf("receiver %d: userId is required", i)
		}
	}
	return nil
}

// SendNotification is the broker payload for the combined email+push path.
type SendNotification struct {
	NotificationID string     `json:"notificationId"`
	Title          string     `json:"NotificationTitle"`
	Content        string     `json:"NotificationContent"`
	Receivers      []Receiver `json:"Receivers"`
}

func (m SendNotification) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("notification title is required")
	}
	for i, r := range m.Receivers {
		if strings.TrimSpace(r.UserID) == "" {
			return fmt.Errorf("receiver %d: userId is required", i)
		}
	}
	return nil
}

// HealthBookReminder is one entry of the JSON array arriving over the
// healthbook queue.
type HealthBookReminder struct {
	UserID        string    `json:"UserId"`
	PetName       string    `json:"PetName"`
	NextVisitDate time.Time `json:"nextVisitDate"`
}

// ChunkReceivers splits receivers into chunks of at most size elements,
// preserving order. A non-positive size falls back to a single chunk.
func ChunkReceivers(receivers []Receiver, size int) [][]Receiver {
	if len(receivers) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]Receiver{receivers}
	}

	chunks := make([][]Receiver, 0, (len(receivers)+size-1)/size)
	for start := 0; start < len(receivers); start += size {
		end := start + size
		if end > len(receivers) {
			end = len(receivers)
		}
		chunks = append(chunks, receivers[start:end])
	}
	return chunks
}
