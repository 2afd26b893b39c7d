package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMail_VisibleTo(t *testing.T) {
	tests := []struct {
		name       string
		mail       Mail
		user       string
		wantVisible bool
	}{
		{"收件人可见", Mail{From: "a", To: "b"}, "b", true},
		{"发件人可见", Mail{From: "a", To: "b"}, "a", true},
		{"无关用户不可见", Mail{From: "a", To: "b"}, "c", false},
		{"空用户不可见", Mail{From: "a", To: "b"}, "", false},
		{"收件人已删除", Mail{From: "a", To: "b", DeletedForReceiver: true}, "b", false},
		{"收件人删除不影响发件人", Mail{From: "a", To: "b", DeletedForReceiver: true}, "a", true},
		{"发件人已删除", Mail{From: "a", To: "b", DeletedForSender: true}, "a", false},
		{"自发邮件删除一侧仍可见", Mail{From: "a", To: "a", DeletedForSender: true}, "a", true},
		{"自发邮件双方删除", Mail{From: "a", To: "a", DeletedForSender: true, DeletedForReceiver: true}, "a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantVisible, tt.mail.VisibleTo(tt.user))
		})
	}
}

func TestMail_Matches(t *testing.T) {
	m := Mail{Subject: "Quarterly Report", Body: "numbers inside"}
	assert.True(t, m.Matches("report"))
	assert.True(t, m.Matches("INSIDE"))
	assert.False(t, m.Matches("missing"))
}

func TestDraft_ToMail(t *testing.T) {
	sentAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := Draft{ID: 9, From: "a", To: "b", Subject: "s", Body: "b", Timestamp: sentAt.Add(-time.Hour)}

	m := d.ToMail(sentAt)
	assert.Equal(t, int64(9), m.ID)
	assert.Equal(t, sentAt, m.Timestamp)
	assert.False(t, m.DeletedForSender)
	assert.False(t, m.DeletedForReceiver)
}

func TestDraftPatch(t *testing.T) {
	subject := "new subject"
	to := "c"
	patch := DraftPatch{Subject: &subject, To: &to}

	got := patch.Apply(Draft{Subject: "old", Body: "body", To: "b"})
	assert.Equal(t, "new subject", got.Subject)
	assert.Equal(t, "body", got.Body)
	assert.Equal(t, "c", got.To)

	// 修改收件人不需要过黑名单
	assert.Equal(t, []string{"new subject"}, patch.ChangedTexts())
	assert.Empty(t, DraftPatch{}.ChangedTexts())
}

func TestLabel_Clone(t *testing.T) {
	l := &Label{ID: 1, Mails: []int64{1, 2}}
	cp := l.Clone()
	cp.Mails[0] = 99
	assert.Equal(t, int64(1), l.Mails[0])
	assert.True(t, l.HasMail(2))
	assert.False(t, l.HasMail(99))

	assert.NotNil(t, (&Label{}).Clone().Mails)
}

func TestMail_InvolvesAndFullyDeleted(t *testing.T) {
	m := Mail{From: "a", To: "b", DeletedForSender: true}
	assert.True(t, m.Involves("a"))
	assert.True(t, m.Involves("b"))
	assert.False(t, m.Involves(""))
	assert.False(t, m.FullyDeleted())

	m.DeletedForReceiver = true
	assert.True(t, m.FullyDeleted())
	assert.True(t, m.Involves("a"))
}
