package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-api/internal/model"
	"github.com/sells-group/insight-api/internal/resilience"
	"github.com/sells-group/insight-api/pkg/anthropic"
)

// Caps on the published contact profile.
const (
	maxEmails          = 3
	maxPhones          = 3
	maxLinksPerNetwork = 2
)

var (
	emailRe   = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	telLinkRe = regexp.MustCompile(`tel:(\+?[\d-]+)`)
	phoneRe   = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
)

// personalMailDomains never count as company contact addresses.
var personalMailDomains = map[string]struct{}{
	"gmail.com":      {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"aol.com":        {},
	"icloud.com":     {},
	"proton.me":      {},
	"protonmail.com": {},
}

// assetSuffixes catch filenames like logo@2x.png that the email pattern
// also matches.
var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

// socialPlatforms maps link hosts to profile platform names.
var socialPlatforms = []struct {
	domain string
	name   string
}{
	{"linkedin.com", "linkedin"},
	{"twitter.com", "twitter"},
	{"x.com", "twitter"},
	{"facebook.com", "facebook"},
	{"instagram.com", "instagram"},
	{"youtube.com", "youtube"},
	{"tiktok.com", "tiktok"},
	{"github.com", "github"},
}

const contactValidationPrompt = `These contact details were pattern-matched from the website %s:

Emails: %s
Phones: %s

Using the website excerpts below, keep only the details that genuinely belong to this company. Drop examples, third-party details, and noise.

Website excerpts:
%s

Return a valid JSON object:
{"emails": ["<kept email>"], "phones": ["<kept phone>"]}`

// contactTask builds the contact-info insight: a deterministic scan for
// candidates, an LLM pass over the same excerpts, and only details both
// sides agree on survive. When validation itself fails the pattern matches
// are kept but the answer says they are unverified.
func (e *Extractor) contactTask(ctx context.Context, rec *model.AnalysisRecord, snippets string, ids []string, scores []float64) (model.Insight, error) {
	emails, phones := contactCandidates(rec)
	profile := model.ContactProfile{Social: socialProfiles(rec.Links)}

	note := ""
	if len(emails) > 0 || len(phones) > 0 {
		vEmails, vPhones, err := e.validateContacts(ctx, rec.Key, emails, phones, snippets)
		if err != nil {
			zap.L().Warn("extract: contact validation unavailable, keeping pattern matches",
				zap.String("key", rec.Key),
				zap.Error(err),
			)
			vEmails, vPhones = emails, phones
			note = " (pattern-matched, not verified)"
		}
		profile.Emails = capList(vEmails, maxEmails)
		profile.Phones = capList(vPhones, maxPhones)
	}

	if profile.Empty() {
		return model.Insight{
			Answer:             "No direct contact details found on the site.",
			SupportingChunkIDs: ids,
			RelevanceScores:    scores,
			Unavailable:        true,
		}, nil
	}

	return model.Insight{
		Answer:             renderContact(profile) + note,
		SupportingChunkIDs: ids,
		RelevanceScores:    scores,
		Contact:            &profile,
	}, nil
}

// contactCandidates scans the mailto links and page text for email and phone
// candidates, deduped and filtered but not yet validated.
func contactCandidates(rec *model.AnalysisRecord) (emails, phones []string) {
	seenEmail := make(map[string]struct{})
	seenPhone := make(map[string]struct{})

	addEmail := func(raw string) {
		addr := strings.ToLower(strings.Trim(strings.TrimSpace(raw), ".,;:"))
		if addr == "" || !strings.Contains(addr, "@") {
			return
		}
		if personalMailbox(addr) || assetName(addr) {
			return
		}
		if _, dup := seenEmail[addr]; dup {
			return
		}
		seenEmail[addr] = struct{}{}
		emails = append(emails, addr)
	}
	addPhone := func(raw string) {
		num := normalizePhone(raw)
		if num == "" {
			return
		}
		key := phoneKey(num)
		if _, dup := seenPhone[key]; dup {
			return
		}
		seenPhone[key] = struct{}{}
		phones = append(phones, num)
	}

	for _, l := range rec.Links[model.LinkEmail] {
		addr := strings.TrimPrefix(l.HRef, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		addEmail(addr)
	}

	for _, p := range rec.Pages {
		for _, m := range emailRe.FindAllString(p.Text, -1) {
			addEmail(m)
		}
		// tel: links are the most reliable phone source, inline patterns second.
		for _, m := range telLinkRe.FindAllStringSubmatch(p.Text, -1) {
			addPhone(m[1])
		}
		for _, m := range phoneRe.FindAllString(p.Text, -1) {
			addPhone(m)
		}
	}
	return emails, phones
}

// validateContacts asks the model to review the pattern-matched candidates
// against the excerpts. A candidate survives only when the model returned it
// too.
func (e *Extractor) validateContacts(ctx context.Context, key string, emails, phones []string, snippets string) ([]string, []string, error) {
	prompt := fmt.Sprintf(contactValidationPrompt, key, joinOrNone(emails), joinOrNone(phones), snippets)
	text, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (string, error) {
		tctx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
		defer cancel()
		return e.llm.Complete(tctx, taskSystemText, []anthropic.Message{{Role: "user", Content: prompt}})
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "extract: validate contacts")
	}

	var raw struct {
		Emails []string `json:"emails"`
		Phones []string `json:"phones"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, nil, eris.Wrap(err, "extract: parse contact validation")
	}

	keptEmail := make(map[string]struct{}, len(raw.Emails))
	for _, m := range raw.Emails {
		keptEmail[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	var vEmails []string
	for _, m := range emails {
		if _, ok := keptEmail[m]; ok {
			vEmails = append(vEmails, m)
		}
	}

	keptPhone := make(map[string]struct{}, len(raw.Phones))
	for _, ph := range raw.Phones {
		if n := normalizePhone(ph); n != "" {
			keptPhone[phoneKey(n)] = struct{}{}
		}
	}
	var vPhones []string
	for _, ph := range phones {
		if _, ok := keptPhone[phoneKey(ph)]; ok {
			vPhones = append(vPhones, ph)
		}
	}
	return vEmails, vPhones, nil
}

// socialProfiles folds the link index's social links into per-platform lists.
func socialProfiles(links model.LinkIndex) map[string][]string {
	out := make(map[string][]string)
	for _, l := range links[model.LinkSocial] {
		platform := platformFor(l.HRef)
		if platform == "" || len(out[platform]) >= maxLinksPerNetwork {
			continue
		}
		dup := false
		for _, existing := range out[platform] {
			if existing == l.HRef {
				dup = true
				break
			}
		}
		if !dup {
			out[platform] = append(out[platform], l.HRef)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func platformFor(href string) string {
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	for _, p := range socialPlatforms {
		if host == p.domain || strings.HasSuffix(host, "."+p.domain) {
			return p.name
		}
	}
	return ""
}

// renderContact writes the profile as a short human-readable answer.
func renderContact(p model.ContactProfile) string {
	var parts []string
	if len(p.Emails) > 0 {
		parts = append(parts, "Email: "+strings.Join(p.Emails, ", "))
	}
	if len(p.Phones) > 0 {
		parts = append(parts, "Phone: "+strings.Join(p.Phones, ", "))
	}
	platforms := make([]string, 0, len(p.Social))
	for platform := range p.Social {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)
	for _, platform := range platforms {
		label := strings.ToUpper(platform[:1]) + platform[1:]
		parts = append(parts, label+": "+strings.Join(p.Social[platform], ", "))
	}
	return strings.Join(parts, ". ")
}

func personalMailbox(addr string) bool {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return false
	}
	_, personal := personalMailDomains[addr[at+1:]]
	return personal
}

func assetName(addr string) bool {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return false
	}
	domain := addr[at+1:]
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(domain, suffix) {
			return true
		}
	}
	return false
}

// phoneKey collapses a normalized number to its dedupe form, folding the
// North American country code into the bare ten digits so tel: links and
// display formats of the same number collide.
func phoneKey(num string) string {
	key := strings.TrimPrefix(num, "+")
	if len(key) == 11 && key[0] == '1' {
		key = key[1:]
	}
	return key
}

// normalizePhone reduces a match to its digits, keeping a leading plus.
// Sequences outside 10 to 15 digits are rejected as non-numbers.
func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 10 || len(digits) > 15 {
		return ""
	}
	if strings.HasPrefix(raw, "+") {
		return "+" + digits
	}
	return digits
}

func capList(list []string, max int) []string {
	if len(list) > max {
		return list[:max]
	}
	return list
}

func joinOrNone(list []string) string {
	if len(list) == 0 {
		return "(none)"
	}
	return strings.Join(list, ", ")
}
