package server

import (
	"fmt"
	"strconv"
)

// ANSI escapes for the DEV console request log
const (
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiGray   = "\033[90m"
	ansiReset  = "\033[0m"
)

// The client only serves reads and form posts
var methodColours = map[string]string{
	"GET":  ansiGreen,
	"HEAD": ansiGreen,
	"POST": ansiBlue,
}

func colourMethod(method string) string {
	colour, ok := methodColours[method]
	if !ok {
		colour = ansiGray
	}
	return colour + fmt.Sprintf(" %-7s", method) + ansiReset
}

// colourStatus highlights failed and guarded responses
func colourStatus(status int) string {
	colour := ansiGreen
	switch {
	case status >= 500:
		colour = ansiRed
	case status >= 400:
		colour = ansiYellow
	case status >= 300:
		colour = ansiGray
	}
	return colour + strconv.Itoa(status) + ansiReset
}
