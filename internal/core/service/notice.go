package service

import (
	"sync"
	"time"
)

const (
	successNoticeTTL = 2 * time.Second
	errorNoticeTTL   = 3 * time.Second
)

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient, user-facing outcome of one manager operation.
type Notice struct {
	Kind      NoticeKind
	Message   string
	ExpiresAt time.Time
}

// NoticeBoard holds notices until they expire.
type NoticeBoard struct {
	mu      sync.Mutex
	notices []Notice
	now     func() time.Time
}

func NewNoticeBoard(now func() time.Time) *NoticeBoard {
	if now == nil {
		now = time.Now
	}
	return &NoticeBoard{now: now}
}

func (b *NoticeBoard) Success(message string) {
	b.post(NoticeSuccess, message, successNoticeTTL)
}

func (b *NoticeBoard) Error(err error) {
	b.post(NoticeError, err.Error(), errorNoticeTTL)
}

func (b *NoticeBoard) post(kind NoticeKind, message string, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, Notice{Kind: kind, Message: message, ExpiresAt: b.now().Add(ttl)})
}

// Active drops expired notices and returns the rest, oldest first.
func (b *NoticeBoard) Active() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	kept := b.notices[:0]
	for _, n := range b.notices {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	b.notices = kept
	return append([]Notice(nil), kept...)
}
