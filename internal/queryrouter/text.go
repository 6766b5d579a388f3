package queryrouter

import (
	"regexp"
	"strings"

	"github.com/crawlbeem/beem/internal/chatsource"
)

// relayCommand is the knowledge-bot command used to tag a query with a
// caller-supplied prefix so the reply can be demultiplexed, spec §6.
const relayCommand = "!RELAY"

// buildRelay wraps query for the primary (prefix-echoing) bot.
func buildRelay(requesterNick, id, query string) string {
	return relayCommand + " -nick " + requesterNick + " -prefix " + id + " -n 1 " + query
}

var controlSequence = regexp.MustCompile(`\x1b\[[0-9]+(,[0-9]+)?[A-Za-z]?`)

// stripControlSequences removes terminal control sequences some knowledge
// bots embed in replies: SO/SI, reverse-video, and ANSI-style color
// sequences of the form ESC[digits(,digits)?, per spec §4.2 step 1. One
// letter directly after the digits (such as the "m" of ESC[0m) is removed
// with the sequence.
func stripControlSequences(s string) string {
	s = controlSequence.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\x0e", "") // SO
	s = strings.ReplaceAll(s, "\x0f", "") // SI
	s = strings.ReplaceAll(s, "\x16", "") // reverse video
	return s
}

// substitute resolves $p/${p} to the watched player's DCSS nick and
// $chat/${chat} to "@u1|@u2|..." built from the source's present chat
// nicks, per spec §4.2 "Outbound encoding".
func substitute(query string, source chatsource.Source, requester string) string {
	query = replacePlaceholder(query, "p", source.DCSSNick(source.WatchedPlayer()))

	nicks := source.ChatDCSSNicks(requester)
	chatList := make([]string, 0, len(nicks))
	for _, n := range nicks {
		chatList = append(chatList, "@"+n)
	}
	query = replacePlaceholder(query, "chat", strings.Join(chatList, "|"))

	return query
}

func replacePlaceholder(s, name, value string) string {
	s = strings.ReplaceAll(s, "${"+name+"}", value)
	s = strings.ReplaceAll(s, "$"+name, value)
	return s
}
