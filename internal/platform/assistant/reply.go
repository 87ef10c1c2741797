package assistant

import "strings"

// SystemPrompt frames every triage conversation. The ESCALATE instruction is
// the contract that ParseReply depends on.
const SystemPrompt = `You are Pulse, a medical assistant AI. Your role is to:

1. Help patients understand their symptoms and health concerns
2. Provide general health information and guidance
3. Help patients prepare for doctor visits
4. Remind patients about medication and appointments
5. Answer questions about medical documents and test results

IMPORTANT GUIDELINES:
- You are NOT a replacement for professional medical advice
- Always recommend patients consult with their physician for serious concerns
- If a patient describes symptoms that could be an emergency (chest pain, difficulty breathing, severe bleeding, etc.), respond with ESCALATE: followed by the reason
- Be empathetic, patient, and clear in your explanations
- Use simple language, avoiding medical jargon when possible
- Ask clarifying questions to better understand the patient's concerns
- Never diagnose conditions or prescribe treatments
- Maintain patient privacy and confidentiality at all times`

// escalationPrefix marks a reply that must never be shown to the patient.
const escalationPrefix = "ESCALATE:"

// Reply is the parsed form of a raw assistant response.
type Reply struct {
	// Escalated is true when the assistant flagged the conversation for
	// physician review. When set, Text is empty and Reason holds the
	// assistant's stated reason.
	Escalated bool
	Reason    string
	Text      string
}

// ParseReply interprets a raw assistant response. A response starting with
// the escalation marker is converted into an escalation signal; the marker
// and reason are internal and must be replaced with a fixed patient-facing
// notice by the caller.
func ParseReply(raw string) Reply {
	if strings.HasPrefix(raw, escalationPrefix) {
		reason := strings.TrimSpace(strings.TrimPrefix(raw, escalationPrefix))
		return Reply{Escalated: true, Reason: reason}
	}
	return Reply{Text: raw}
}
