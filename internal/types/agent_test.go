package types

import "testing"

func TestParseAgentKind(t *testing.T) {
	cases := []struct {
		raw  string
		want AgentKind
		ok   bool
	}{
		{"general", AgentGeneral, true},
		{" Study-Materials ", AgentStudyMaterials, true},
		{"ACADEMIC-ADVISOR", AgentAcademicAdvisor, true},
		{"notifications", AgentNotifications, true},
		{"article", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseAgentKind(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseAgentKind(%q) = %q, %v; want %q, %v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeAgentKindDefaultsToGeneral(t *testing.T) {
	if got := NormalizeAgentKind(""); got != AgentGeneral {
		t.Fatalf("expected general for blank kind, got %q", got)
	}
	if got := NormalizeAgentKind("email_support"); got != AgentGeneral {
		t.Fatalf("expected general for unknown kind, got %q", got)
	}
	if got := AgentKind("wizard").DisplayName(); got != "General Assistant" {
		t.Fatalf("unexpected display name %q", got)
	}
}

func TestActiveChatStateCloneIsIndependent(t *testing.T) {
	state := ActiveChatState{Messages: []Message{{ID: "1", Role: RoleUser, Content: "hi"}}, CurrentConversationID: 3}
	clone := state.Clone()
	clone.Messages[0].Content = "changed"
	if state.Messages[0].Content != "hi" {
		t.Fatalf("clone shares message storage")
	}
	if !PendingConversation.Pending() || ConversationID(3).Pending() {
		t.Fatalf("unexpected pending state")
	}
}
