// SPDX-License-Identifier: MPL-2.0

package job

import "slices"

type (
	// ScriptOutput captures one hook phase. ReturnCode stays nil until the
	// hook has run.
	ScriptOutput struct {
		Stdout     []string `json:"stdout"`
		Stderr     []string `json:"stderr"`
		ReturnCode *int     `json:"returncode"`
	}

	// Snapshot is the status payload delivered to callbacks. Its JSON shape
	// is shared by every job kind. Update jobs additionally carry the
	// snapshots of their uninstall and install phases.
	Snapshot struct {
		Module        string       `json:"module"`
		Status        string       `json:"status"`
		PreScript     ScriptOutput `json:"prescript"`
		PostScript    ScriptOutput `json:"postscript"`
		UpdateProcess bool         `json:"updateProcess"`
		Progress      []string     `json:"progress"`

		Uninstall *Snapshot `json:"uninstall,omitempty"`
		Install   *Snapshot `json:"install,omitempty"`
	}

	phase int
)

const (
	prePhase phase = iota
	postPhase
)

func newScriptOutput() ScriptOutput {
	return ScriptOutput{Stdout: []string{}, Stderr: []string{}}
}

// Clone returns a deep copy of o.
func (o ScriptOutput) Clone() ScriptOutput {
	c := ScriptOutput{
		Stdout: slices.Clone(o.Stdout),
		Stderr: slices.Clone(o.Stderr),
	}
	if c.Stdout == nil {
		c.Stdout = []string{}
	}
	if c.Stderr == nil {
		c.Stderr = []string{}
	}
	if o.ReturnCode != nil {
		rc := *o.ReturnCode
		c.ReturnCode = &rc
	}
	return c
}

// Clone returns a deep copy of s that shares no memory with it.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.PreScript = s.PreScript.Clone()
	c.PostScript = s.PostScript.Clone()
	c.Progress = slices.Clone(s.Progress)
	if c.Progress == nil {
		c.Progress = []string{}
	}
	if s.Uninstall != nil {
		u := s.Uninstall.Clone()
		c.Uninstall = &u
	}
	if s.Install != nil {
		i := s.Install.Clone()
		c.Install = &i
	}
	return c
}

func (s *Snapshot) script(p phase) *ScriptOutput {
	if p == postPhase {
		return &s.PostScript
	}
	return &s.PreScript
}
