package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) reminders(ctx context.Context, window time.Duration, send bool) error {
	if send {
		res, err := cli.dispatcher.Dispatch(ctx, cli.now(), window)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "due: %d, sent: %d, already sent: %d, failed: %d\n", res.Due, res.Sent, res.Skipped, res.Failed)
		return nil
	}

	due, err := cli.sessions.DueReminders(ctx, cli.now(), window)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		fmt.Fprintln(cli.out, "no class sessions due a reminder")
		return nil
	}
	for _, session := range due {
		fmt.Fprintf(cli.out, "%s\t%s\t%s\n", session.ID, session.StartTime.Format(time.RFC3339), session)
	}
	return nil
}

func (cli *commandLine) showCourse(ctx context.Context, code string) error {
	course, err := cli.courses.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	lecturer := "-"
	if course.LecturerID != nil {
		lecturer = *course.LecturerID
	}
	fmt.Fprintf(cli.out, "%s\ncredits: %d\nlevel: %s\nlecturer: %s\n", course, course.Credits, course.Level, lecturer)
	return nil
}
