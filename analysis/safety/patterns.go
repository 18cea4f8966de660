package safety

import "regexp"

// Fixed responses. They are returned verbatim; no model is involved.
const (
	SelfHarmResponse = "It sounds like you might be going through something really painful right now, and that matters more than any analysis. " +
		"You deserve support from a real person. If you're in the US you can call or text 988 (Suicide & Crisis Lifeline); elsewhere, " +
		"please contact your local emergency number or a crisis line. If you're in immediate danger, call emergency services now."

	MinorSafetyResponse = "I can't help analyze this one. A relationship where one person is under 18 and the other is several years older " +
		"isn't something I can give dating advice about. If someone older is pressuring you, please talk to a trusted adult, " +
		"or contact Childhelp (1-800-422-4453) or your local child protection line."

	AbuseResponse = "What you're describing sounds serious, and your safety comes first. I'm not the right tool for this. " +
		"If you're in danger, contact emergency services. The National Domestic Violence Hotline (1-800-799-7233, or text START to 88788) " +
		"can help you think through next steps confidentially."

	RedirectPreamble = "Quick note before the read: if any of this is weighing on you heavily or you ever feel unsafe, " +
		"talking to someone you trust or a support line (988 in the US) can help. You don't have to sort it out alone."
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Patterns run against lower-cased text.
var (
	allowPatterns = compileAll(
		`\bcut (?:off )?contact\b`,
		`\bno[- ]contact\b`,
		`\btoxic relationship\b`,
		`\bkill(?:ing|ed)? (?:it|time|the vibe|the mood)\b`,
		`\b(?:dying|died) (?:to|of) (?:know|laughter|embarrassment)\b`,
		`\b(?:i'?m|i am) dead\b`,
		`\bdead tired\b`,
		`\bghost(?:ed|ing)? me\b`,
		`\bblock(?:ed)? (?:him|her|them|their number)\b`,
	)

	selfHarmPatterns = compileAll(
		`\bkill(?:ing)? myself\b`,
		`\bsuicid(?:e|al)\b`,
		`\bend (?:my|it all|my own) life\b`,
		`\bend it all\b`,
		`\bwant to die\b`,
		`\bself[- ]harm(?:ing)?\b`,
		`\b(?:cut|cutting|hurt|hurting) myself\b`,
		`\boverdos(?:e|ing)\b`,
	)

	abusePatterns = compileAll(
		`\b(?:he|she|they) (?:hit|hits|punched|punches|slapped|slaps|kicked|kicks|choked|chokes|strangled) me\b`,
		`\b(?:beat|beats|beating) me\b`,
		`\brap(?:e|ed|ing)\b`,
		`\bsexual(?:ly)? assault(?:ed)?\b`,
		`\bthreaten(?:ed|s|ing)? to kill\b`,
		`\bforced me to\b`,
	)

	ideationPatterns = compileAll(
		`\bi(?: feel|'m| am) worthless\b`,
		`\bdon'?t want to be here\b`,
		`\bwhat'?s the point (?:of|in) (?:anything|living|any of this)\b`,
		`\bwish i (?:could )?disappear\b`,
		`\bno reason to (?:live|go on)\b`,
		`\beveryone would be better off without me\b`,
	)

	controllingPatterns = compileAll(
		`\b(?:checks|went through|goes through) my phone\b`,
		`\bwon'?t let me (?:see|go|talk|leave)\b`,
		`\bcontrols? (?:my|all my) (?:money|finances)\b`,
		`\btracks? my (?:location|phone)\b`,
		`\b(?:threw|throws|smashed|smashes|broke) (?:things|stuff|my phone|something)\b`,
		`\bpunch(?:ed|es)? (?:the|a) wall\b`,
		`\bthreaten(?:ed|s)? to leave if\b`,
	)
)
