package tg

import "fmt"

// TimeLayout is how class start times are shown to users, in mail and chat alike.
const TimeLayout = "Mon, Jan 2 2006 15:04"

// ClassCompletedText is the teacher's chat notice after a class is finished.
func ClassCompletedText(student string, minutes int, earning float64) string {
	return fmt.Sprintf("Class with %s completed: %d min, earned %.2f", student, minutes, earning)
}

func ClassReminderText(student, at string) string {
	return fmt.Sprintf("Reminder: class with %s at %s", student, at)
}
