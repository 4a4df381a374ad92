package msggen

import (
	"strings"
	"time"

	"notlarim/internal/model"
)

// systemPrompt pins the generation persona; the per-request prompt
// carries the event and rule set details.
const systemPrompt = "Sen profesyonel bir Türkçe mesaj yazarısın. Verilen kurallara göre mesaj üret."

// buildPrompt assembles the user prompt from the event, the rule set
// and the optional per-request overrides. The app renders rule sets in
// Turkish, so the prompt stays Turkish end to end.
func buildPrompt(ev *model.CalendarEvent, rs *model.AIRuleSet, additionalNote, messageType string) string {
	startAt := "Belirtilmemiş"
	if ev.StartAt != nil {
		startAt = ev.StartAt.UTC().Format(time.RFC3339)
	}
	description := ev.Description
	if description == "" {
		description = "Yok"
	}
	greeting := rs.GreetingStyle
	if greeting == "" {
		greeting = "Genel"
	}
	lengthTarget := messageType
	if lengthTarget == "" {
		lengthTarget = rs.LengthTarget
	}
	if lengthTarget == "" {
		lengthTarget = "orta"
	}

	lines := []string{
		"Aşağıdaki bilgilere göre Türkçe bir mesaj üret:",
		"",
		"## Etkinlik Bilgileri",
		"- Başlık: " + ev.Title,
		"- Tarih: " + startAt,
		"- Açıklama: " + description,
		"",
		"## Kural Seti: " + rs.Name,
		"- Kategori: " + rs.Category,
		"- Hitap şekli: " + greeting,
		"- Üslup: " + rs.Tone,
		"- Emoji politikası: " + rs.EmojiPolicy,
		"- Hedef mesaj uzunluğu: " + lengthTarget,
	}

	if len(rs.FixedPhrases) > 0 {
		lines = append(lines, "- Sabit cümleler (mesaja dahil et): "+strings.Join(rs.FixedPhrases, "; "))
	}
	if len(rs.BannedWords) > 0 {
		lines = append(lines, "- Yasak kelimeler (KULLANMA): "+strings.Join(rs.BannedWords, ", "))
	}
	if rs.CustomInstructions != "" {
		lines = append(lines, "- Ek talimatlar: "+rs.CustomInstructions)
	}
	if additionalNote != "" {
		lines = append(lines, "", "## Kullanıcı notu: "+additionalNote)
	}

	lines = append(lines, "", "Mesajı doğrudan yaz, açıklama ekleme. Dil: Türkçe.")
	return strings.Join(lines, "\n")
}
