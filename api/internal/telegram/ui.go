package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"photo-screener/api/internal/criteria"
	"photo-screener/api/internal/orchestrator"
)

const helpText = `Бот проверяет фото по общим критериям.

Пришлите фото или альбом (можно файлом), затем:
/screen — проверить все ожидающие фото
/status — список фото и их статусы
/retry N — повторить проверку фото N
/export N — получить фото N с рамкой и логотипом
/clear — удалить все фото

Критерии:
/criteria — показать
/ban текст [low|medium|high] — добавить запрет
/want текст — добавить пожелание
/unset N — удалить критерий N`

const (
	cbExport = "export:"
	cbRetry  = "retry:"
	// не больше стольких кнопок экспорта под одним сообщением
	maxKeyboardRows = 10
)

func statusIcon(s orchestrator.Status) string {
	switch s {
	case orchestrator.StatusPass:
		return "✅"
	case orchestrator.StatusFail:
		return "❌"
	case orchestrator.StatusError:
		return "⚠️"
	case orchestrator.StatusAnalyzing:
		return "⏳"
	}
	return "•"
}

func formatCriteria(set criteria.Set) string {
	if len(set) == 0 {
		return "Критериев нет: любое фото пройдёт проверку."
	}
	var b strings.Builder
	b.WriteString("Критерии:\n")
	for i, c := range set {
		if c.Type == criteria.Forbidden {
			fmt.Fprintf(&b, "%d. 🚫 %s (%s)\n", i+1, c.Label, c.EffectiveStrictness())
		} else {
			fmt.Fprintf(&b, "%d. 👍 %s\n", i+1, c.Label)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPhoto(n int, p orchestrator.Photo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s %s — %s", n, statusIcon(p.Status), p.Filename, p.Status)
	for _, r := range p.Reasons {
		fmt.Fprintf(&b, "\n   - %s", r)
	}
	if p.Feedback != "" {
		fmt.Fprintf(&b, "\n   %s", p.Feedback)
	}
	if p.Error != "" {
		fmt.Fprintf(&b, "\n   ошибка: %s", p.Error)
	}
	return b.String()
}

func formatStatus(photos []orchestrator.Photo, s orchestrator.Summary) string {
	if len(photos) == 0 {
		return "Фото нет. Пришлите фото для проверки."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Всего: %d, ожидают: %d, в работе: %d, прошли: %d, не прошли: %d, ошибки: %d\n",
		s.Total, s.Pending, s.Analyzing, s.Pass, s.Fail, s.Error)
	for i, p := range photos {
		b.WriteString("\n")
		b.WriteString(formatPhoto(i+1, p))
	}
	return b.String()
}

func formatReport(photos []orchestrator.Photo, rep orchestrator.BatchReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Проверено: %d. Прошли: %d, не прошли: %d, ошибки: %d\n",
		rep.Processed, rep.Passed, rep.Failed, rep.Errored)
	for i, p := range photos {
		b.WriteString("\n")
		b.WriteString(formatPhoto(i+1, p))
	}
	return b.String()
}

// resultKeyboard: экспорт для прошедших, повтор для ошибок.
func resultKeyboard(photos []orchestrator.Photo) (tgbotapi.InlineKeyboardMarkup, bool) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, p := range photos {
		if len(rows) == maxKeyboardRows {
			break
		}
		n := strconv.Itoa(i + 1)
		switch p.Status {
		case orchestrator.StatusPass:
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Экспорт "+n, cbExport+p.ID)))
		case orchestrator.StatusError:
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Повторить "+n, cbRetry+p.ID)))
		}
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

// parseIndex разбирает номер 1..n в индекс 0..n-1.
func parseIndex(arg string, n int) (int, bool) {
	k, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || k < 1 || k > n {
		return 0, false
	}
	return k - 1, true
}

func indexHint(n int) string {
	if n == 0 {
		return "Список пуст."
	}
	return fmt.Sprintf("Укажите номер от 1 до %d.", n)
}

// parseForbidden: последнее слово может задавать строгость.
func parseForbidden(args string) (string, criteria.Strictness) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return strings.TrimSpace(args), ""
	}
	last := fields[len(fields)-1]
	for _, s := range []criteria.Strictness{criteria.Low, criteria.Medium, criteria.High} {
		if strings.EqualFold(last, string(s)) {
			return strings.Join(fields[:len(fields)-1], " "), s
		}
	}
	return strings.Join(fields, " "), ""
}
