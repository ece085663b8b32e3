package builtin

import (
	"context"
	"fmt"
	"time"

	"modbot/internal/session"
)

type dateArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA zone such as Europe/Lisbon; defaults to the user's preference"`
}

type clock struct {
	now func() time.Time
}

func (c clock) dateInfo(ctx context.Context, sc *session.Context, args dateArgs) (string, error) {
	tz := args.Timezone
	if tz == "" {
		tz = sc.Preferences().Timezone
	}
	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", tz)
		}
		loc = l
	}
	now := c.now().In(loc)
	_, week := now.ISOWeek()
	return fmt.Sprintf("Today is %s, %s %d, %d\nTime: %s (%s)\nDay of year: %d\nISO week: %d",
		now.Weekday(), now.Month(), now.Day(), now.Year(),
		now.Format("15:04:05"), loc.String(), now.YearDay(), week), nil
}
