// Package personalize implements the Personalizer (spec §4.B):
// deterministically deriving a subject/body/from-name trio for one
// recipient from a campaign's templates and variable map.
package personalize

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/unclebandit/relaycast/internal/model"
)

// Result is the personalized trio returned for one recipient.
type Result struct {
	Subject  string
	Body     string
	FromName string
}

// UnsubscribeBaseURL is the base the recipient's address is appended to
// as a percent-encoded query parameter. It is a package variable (not a
// constant) so tests and deployments can override it.
var UnsubscribeBaseURL = "https://unsubscribe.example.com/u"

const refTokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Personalize derives the subject/body/from-name trio for one recipient
// of campaign c, selecting a relay's user as the from-name fallback.
// Random picks (custom subject/sender pool, ref token) use the supplied
// rng so tests can make the pick deterministic.
func Personalize(c *model.Campaign, recipient string, relay model.RelayDescriptor, rng *rand.Rand) Result {
	name, domain := splitRecipient(recipient)

	subjectTemplate := c.SubjectTemplate
	if len(c.CustomSubjects) > 0 {
		subjectTemplate = c.CustomSubjects[rng.IntN(len(c.CustomSubjects))]
	}

	fromName := userLocalPart(relay.User)
	if len(c.CustomSenders) > 0 {
		fromName = c.CustomSenders[rng.IntN(len(c.CustomSenders))]
	}

	now := time.Now()
	vars := map[string]string{
		"name":        name,
		"email":       recipient,
		"domain":      domain,
		"unsubscribe": unsubscribeURL(recipient),
		"date":        now.Format("2006-01-02"),
		"time":        now.Format("15:04:05"),
		"campaign_id": c.ID,
		"ref":         refToken(rng),
	}

	return Result{
		Subject:  substitute(subjectTemplate, vars),
		Body:     substitute(c.BodyTemplate, vars),
		FromName: fromName,
	}
}

func substitute(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

func splitRecipient(recipient string) (name, domain string) {
	at := strings.LastIndexByte(recipient, '@')
	if at < 0 {
		return recipient, ""
	}
	return recipient[:at], recipient[at+1:]
}

func userLocalPart(user string) string {
	at := strings.LastIndexByte(user, '@')
	if at < 0 {
		return user
	}
	return user[:at]
}

func unsubscribeURL(recipient string) string {
	q := url.Values{}
	q.Set("email", recipient)
	return fmt.Sprintf("%s?%s", UnsubscribeBaseURL, q.Encode())
}

func refToken(rng *rand.Rand) string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = refTokenAlphabet[rng.IntN(len(refTokenAlphabet))]
	}
	return string(b)
}
