package bot

import (
	"context"
	"errors"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"shadowfax/internal/palantir"
)

// maxChunkUnits keeps listings under Telegram's 4096 character message limit,
// which is counted in UTF-16 code units
const maxChunkUnits = 4000

// send delivers a message, logging failures. Returns false when the send failed.
func (b *Bot) send(c tgbotapi.Chattable) bool {
	if b.api == nil {
		return false
	}

	if _, err := b.api.Send(c); err != nil {
		b.logger.Error("Failed to send message", zap.Error(err))
		return false
	}
	return true
}

func (b *Bot) sendText(chatID int64, text string) bool {
	return b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendHTML(chatID int64, text string) bool {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return b.send(msg)
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) bool {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	return b.send(msg)
}

func (b *Bot) sendLocation(chatID int64, latitude, longitude float64) bool {
	return b.send(tgbotapi.NewLocation(chatID, latitude, longitude))
}

// sendChunks sends a header followed by lines, packed into messages of at most
// maxChunkUnits characters and paced by the send limiter
func (b *Bot) sendChunks(ctx context.Context, chatID int64, header string, lines []string) {
	for _, chunk := range chunkLines(header, lines, maxChunkUnits) {
		if err := b.pace.Wait(ctx); err != nil {
			b.logger.Warn("Chunked send interrupted", zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
		b.sendHTML(chatID, chunk)
	}
}

// textLen measures s the way Telegram does, in UTF-16 code units
func textLen(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// chunkLines joins lines with newlines into chunks no longer than limit.
// A single line longer than limit loses its markup and is split between
// characters or whole entities.
func chunkLines(header string, lines []string, limit int) []string {
	var chunks []string
	var current strings.Builder
	size := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
	}

	add := func(line string) {
		n := textLen(line)
		if size > 0 && size+1+n > limit {
			flush()
		}
		if n > limit {
			pieces := splitLong(line, limit)
			chunks = append(chunks, pieces[:len(pieces)-1]...)
			line = pieces[len(pieces)-1]
			n = textLen(line)
		}
		if size > 0 {
			current.WriteByte('\n')
			size++
		}
		current.WriteString(line)
		size += n
	}

	if header != "" {
		add(header)
	}
	for _, line := range lines {
		add(line)
	}
	flush()

	return chunks
}

// splitLong drops HTML tags from line and cuts the remaining text into pieces
// of at most limit units. Entities such as &lt; are never cut.
func splitLong(line string, limit int) []string {
	var pieces []string
	var current strings.Builder
	size := 0

	for _, token := range htmlTokens(line) {
		n := textLen(token)
		if size > 0 && size+n > limit {
			pieces = append(pieces, current.String())
			current.Reset()
			size = 0
		}
		current.WriteString(token)
		size += n
	}
	if current.Len() > 0 || len(pieces) == 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

// htmlTokens splits s into single characters and whole entities, skipping tags
func htmlTokens(s string) []string {
	var tokens []string
	for i := 0; i < len(s); {
		switch s[i] {
		case '<':
			if end := strings.IndexByte(s[i:], '>'); end >= 0 {
				i += end + 1
				continue
			}
		case '&':
			if end := strings.IndexByte(s[i:], ';'); end > 0 && end <= 10 {
				tokens = append(tokens, s[i:i+end+1])
				i += end + 1
				continue
			}
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		tokens = append(tokens, s[i:i+size])
		i += size
	}
	return tokens
}

// reportBackendError tells the user why a Palantír request failed. A backend
// error message is relayed verbatim; anything else gets a generic apology.
func (b *Bot) reportBackendError(chatID int64, op string, err error) {
	var backendErr *palantir.BackendError
	if errors.As(err, &backendErr) {
		b.logger.Info("Palantír returned an error",
			zap.String("op", op),
			zap.Int64("chat_id", chatID),
			zap.String("error", backendErr.Message),
		)
		b.sendText(chatID, "❌ "+backendErr.Message)
		return
	}

	b.logger.Error("Palantír request failed", zap.String("op", op), zap.Int64("chat_id", chatID), zap.Error(err))
	if errors.Is(err, palantir.ErrMalformed) {
		b.sendText(chatID, "❌ Сталася помилка при отриманні інформації.")
		return
	}
	b.sendText(chatID, "❌ Не вдалося отримати дані. Спробуйте пізніше.")
}

func isHardFailure(err error) bool {
	var backendErr *palantir.BackendError
	return err != nil && !errors.As(err, &backendErr)
}
