package bot

import (
	"go.uber.org/zap"
)

// session returns the chat's session, creating it on first contact
func (b *Bot) session(chatID int64) *Session {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()

	s, ok := b.sessions[chatID]
	if !ok {
		s = &Session{ChatID: chatID}
		b.sessions[chatID] = s
	}
	return s
}

// touch expires a session idle for longer than sessionTimeout and records the
// current activity. Returns true when the session was reset.
func (b *Bot) touch(s *Session) bool {
	now := b.now()
	expired := !s.LastActivity.IsZero() && now.Sub(s.LastActivity) > sessionTimeout
	s.LastActivity = now

	if !expired {
		return false
	}

	b.logger.Info("Session expired after inactivity",
		zap.Int64("chat_id", s.ChatID),
		zap.String("state", s.State().String()),
		zap.Int64("client_id", s.SelectedClientID),
	)
	s.Reset()
	b.sendText(s.ChatID, "⌛ Сесію завершено через 30 хвилин неактивності. Почніть спочатку.")
	return true
}

// pruneSessions drops sessions idle for longer than sessionRetention.
// Returns the number of sessions removed.
func (b *Bot) pruneSessions() int {
	now := b.now()

	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()

	removed := 0
	for chatID, s := range b.sessions {
		if !s.LastActivity.IsZero() && now.Sub(s.LastActivity) > sessionRetention {
			delete(b.sessions, chatID)
			removed++
		}
	}
	return removed
}
