package delivery

import (
	"fmt"
	"strings"

	"paie/internal/attendance"
)

// Subject is the subject line of code emails.
const Subject = "Your attendance verification code"

// Body renders the plain text message a member receives.
func Body(d attendance.Delivery) string {
	var b strings.Builder
	name := d.MemberName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hello %s,\r\n\r\n", name)
	fmt.Fprintf(&b, "Your attendance verification code is: %s\r\n\r\n", d.Code)
	fmt.Fprintf(&b, "This code expires in %d minute%s. Do not share it with anyone.\r\n", d.ExpiryMinutes, plural(d.ExpiryMinutes))
	return b.String()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
