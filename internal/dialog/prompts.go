package dialog

import (
	"fmt"
	"strings"
	"time"

	"github.com/meridianhealth/hospital-ai-platform/internal/scheduling"
)

const intentSystemPrompt = `You classify a hospital caller's message into exactly one intent.
Reply with a single word from this list and nothing else:
book - wants to make a new appointment
cancel - wants to cancel an existing appointment
reschedule - wants to move an existing appointment
query - asks about doctors, departments, hours, or an existing booking
symptom - describes how they feel and wants guidance
unknown - none of the above`

const extractSystemPrompt = `You extract appointment details from a hospital caller's message.
Reply with only a JSON object with these string fields:
patient_name, hospital, department, doctor, date, time, symptom_text.
Copy values from the caller's words. Leave a field as an empty string when
the message does not mention it. Never invent or guess values.`

// slotPrompts are the follow-up questions asked for each missing slot,
// in the fixed collection order.
var slotPrompts = map[SlotName]string{
	SlotPatientName: "May I have the patient's full name?",
	SlotHospital:    "Which hospital would you like to visit?",
	SlotDepartment:  "Which department do you need? If you're not sure, describe the symptoms and I can suggest one.",
	SlotDoctor:      "Is there a particular doctor you'd like to see?",
	SlotDate:        "What date works for you?",
	SlotTime:        "What time of day suits you best?",
}

const (
	replyGreeting = "Hello, thank you for calling Meridian Health. I can book, cancel, or reschedule appointments, answer questions, or help you find the right department for your symptoms. How can I help?"

	replyReprompt = "I'm sorry, I didn't catch that. Could you say it again?"

	replyUnknownIntent = "I can help you book, cancel, or reschedule an appointment, answer questions about our doctors and departments, or suggest a department for your symptoms. What would you like to do?"

	replyApology = "I'm sorry, something went wrong on our end. Could you try that again?"

	replyAskCancelTarget = "I can help with that. What's the booking reference of the appointment you'd like to cancel? It looks like APPT-XXXXXXXX."

	replyAskRescheduleTarget = "I can help move your appointment. What's its booking reference? It looks like APPT-XXXXXXXX."

	replyAskRescheduleWhen = "When would you like to move it to? Please give me a date and time."

	replyAskSymptoms = "I'm sorry to hear that. Can you describe your symptoms for me?"

	replyOutsideHours = "We see patients between 9 AM and 12 PM and between 2 PM and 5 PM. What time within those hours works for you?"

	replyPastWindow = "That time has already passed. What date and time would work for you?"

	replyRescheduleLimit = "I'm sorry, this appointment has already been rescheduled twice, which is the most we can do. I can cancel it and book a fresh appointment instead if you'd like."

	replyNotFound = "I couldn't find an appointment under that reference. Could you double-check it?"

	replyEmergency = "Based on what you've described, please seek emergency care immediately or call your local emergency number. I'm also alerting our operator so someone can follow up with you."
)

func promptForSlot(name SlotName) string {
	if p, ok := slotPrompts[name]; ok {
		return p
	}
	return replyUnknownIntent
}

func confirmationReply(appt *scheduling.Appointment) string {
	return fmt.Sprintf(
		"You're all set. %s is booked with %s (%s) at %s on %s at %s. Your booking reference is %s. We'll text you a confirmation shortly.",
		appt.PatientName, appt.Doctor, appt.Department, appt.Hospital,
		appt.Start.Format("Monday, January 2"), appt.Start.Format("3:04 PM"),
		appt.BookingRef,
	)
}

func cancellationReply(appt *scheduling.Appointment) string {
	return fmt.Sprintf(
		"Done. Your appointment %s with %s on %s at %s has been cancelled.",
		appt.BookingRef, appt.Doctor,
		appt.Start.Format("Monday, January 2"), appt.Start.Format("3:04 PM"),
	)
}

func rescheduleReply(appt *scheduling.Appointment) string {
	return fmt.Sprintf(
		"Done. Your appointment %s with %s is now on %s at %s.",
		appt.BookingRef, appt.Doctor,
		appt.Start.Format("Monday, January 2"), appt.Start.Format("3:04 PM"),
	)
}

func conflictReply(doctor string, alternatives []scheduling.TimeWindow) string {
	if len(alternatives) == 0 {
		return fmt.Sprintf("I'm sorry, that time with %s is already taken and there are no other openings that day. Would another day work?", doctor)
	}
	shown := alternatives
	if len(shown) > 3 {
		shown = shown[:3]
	}
	times := make([]string, 0, len(shown))
	for _, w := range shown {
		times = append(times, w.Start.Format("3:04 PM"))
	}
	return fmt.Sprintf(
		"I'm sorry, that time with %s is already taken. I do have %s open. Would one of those work?",
		doctor, strings.Join(times, ", "),
	)
}

func availabilityReply(doctor string, day time.Time, windows []scheduling.TimeWindow) string {
	if len(windows) == 0 {
		return fmt.Sprintf("%s has no openings on %s. Would another day work?", doctor, day.Format("Monday, January 2"))
	}
	shown := windows
	if len(shown) > 5 {
		shown = shown[:5]
	}
	times := make([]string, 0, len(shown))
	for _, w := range shown {
		times = append(times, w.Start.Format("3:04 PM"))
	}
	return fmt.Sprintf("%s is available on %s at %s.", doctor, day.Format("Monday, January 2"), strings.Join(times, ", "))
}
