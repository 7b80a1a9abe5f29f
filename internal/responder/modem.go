package responder

import (
	"context"
	"strings"

	"github.com/nebulatel/handoff/internal/domain"
)

var modemSteps = []string{
	"Great! Let's get your new modem set up.\n\nStep 1: Open the box and take out the modem and the power cord.",
	"Step 2: Connect the coax cable from the wall to the back of the modem. Make sure it's finger-tight.",
	"Step 3: Plug the power cord into the modem and then into an electrical outlet.",
	"Step 4: Wait for the 'Online' light to turn solid white. This might take up to 10 minutes.",
	"Step 5: Connect your devices to the WiFi using the Network Name (SSID) and Password printed on the bottom of the modem.",
}

// ModemInstallResponder walks a customer through modem setup one step per
// message. The step counter lives on the instance, so two sessions installing
// modems at the same time advance independently.
type ModemInstallResponder struct {
	step   int
	inFlow bool
}

// NewModemInstall creates a modem installation responder.
func NewModemInstall() Responder {
	return &ModemInstallResponder{step: -1}
}

// Name returns the routing name of the responder.
func (*ModemInstallResponder) Name() string { return "modem_install" }

// Respond starts or advances the guided install flow. Saying quit or stop
// cancels it.
func (m *ModemInstallResponder) Respond(_ context.Context, message string, _ []domain.Message) (Reply, error) {
	text := strings.ToLower(message)

	if strings.Contains(text, "modem") && containsAny(text, "install", "setup", "set up") {
		m.inFlow = true
		m.step = 0
		return Reply{Text: modemSteps[0]}, nil
	}

	if m.inFlow {
		if containsAny(text, "quit", "stop") {
			m.inFlow = false
			m.step = -1
			return Reply{Text: "Modem setup cancelled. How else can I help?"}, nil
		}
		m.step++
		if m.step < len(modemSteps) {
			return Reply{Text: modemSteps[m.step]}, nil
		}
		m.inFlow = false
		m.step = -1
		return Reply{Text: "Congratulations! Your modem should be all set up. Is there anything else?"}, nil
	}

	return Reply{Text: "I can help you install a new modem. Just say 'install modem' to get started."}, nil
}
