package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stepClock advances by step on every reading so creation order is total.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// testEpoch is a Friday.
var testEpoch = time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)

func newTestClock() *stepClock {
	return &stepClock{now: testEpoch, step: time.Second}
}

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	base := []ServiceOption{WithClock(newTestClock())}
	return NewInMemoryService(NewDefaultRulesEngine(), append(base, opts...)...)
}

func register(t *testing.T, svc *Service, email string, years int) Registration {
	t.Helper()
	reg, err := svc.CreateUser(context.Background(), NewUser{Email: email, Name: "Test " + email, EducationYears: years})
	require.NoError(t, err)
	return reg
}

func record(t *testing.T, svc *Service, reg Registration, section string, raw float64) RecordOutcome {
	t.Helper()
	out, err := svc.RecordSectionResult(context.Background(), RecordInput{
		SessionID:   reg.SessionID,
		UserID:      reg.User.ID,
		SectionName: section,
		RawScore:    raw,
		Confidence:  1,
	})
	require.NoError(t, err)
	return out
}

func encodeCanvas(t *testing.T, mark bool) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.White)
			if mark && x > 3 && x < 12 && y > 3 && y < 12 {
				img.Set(x, y, color.Black)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
