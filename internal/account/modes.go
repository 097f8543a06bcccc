package account

import (
	"strings"

	"github.com/mjproxy/core/internal/model"
)

// SettingsSync is the subset of a Discord settings/info sync dispatch
// the mode manager reacts to (spec.md §4.2 "Mode management").
type SettingsSync struct {
	FastExhausted  bool
	FastMinutesLeft float64
	Components     []model.Component
}

// ApplySettingsSync updates mode and cached components from a settings
// or info sync event.
func (r *Runtime) ApplySettingsSync(sync SettingsSync) {
	r.Account.Lock()
	defer r.Account.Unlock()

	if sync.Components != nil {
		r.Account.ComponentsMJ = sync.Components
	}

	if r.Account.EnableFastToRelax && sync.FastExhausted {
		r.Account.FastExhausted = true
		r.Account.Mode = model.ModeRelax
	}
	if r.Account.EnableRelaxToFast && sync.FastMinutesLeft > 0 {
		r.Account.FastExhausted = false
		r.Account.Mode = model.ModeFast
	}

	r.Account.SubChannelMap = model.ParseSubChannels(r.Account.SubChannels)
}

// modeKeywords maps each mode to the prompt keyword Midjourney
// recognizes for it.
var modeKeywords = map[model.Mode]string{
	model.ModeRelax: "--relax",
	model.ModeFast:  "--fast",
	model.ModeTurbo: "--turbo",
}

// FilterPrompt strips any mode keyword from the prompt that the
// account's allow_modes does not permit (spec.md §4.2 "allow_modes
// filters effective modes").
func (r *Runtime) FilterPrompt(prompt string) string {
	r.Account.RLock()
	unrestricted := len(r.Account.AllowModes) == 0
	allowed := make(map[model.Mode]bool, len(r.Account.AllowModes))
	for _, m := range r.Account.AllowModes {
		allowed[m] = true
	}
	r.Account.RUnlock()

	if unrestricted {
		return prompt
	}

	for mode, keyword := range modeKeywords {
		if !allowed[mode] && strings.Contains(prompt, keyword) {
			prompt = strings.TrimSpace(strings.ReplaceAll(prompt, keyword, ""))
		}
	}
	return prompt
}
