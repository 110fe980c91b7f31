package submission

// Phase is a step of a submission. Phases run strictly in the order given by
// next; a phase starts only after every call of the previous one succeeded.
type Phase int

const (
	// PhaseEligibility covers every local check plus enrichment and document
	// assembly. Nothing is sent to the CyberTipline during it.
	PhaseEligibility Phase = iota
	PhaseSubmit
	PhaseUploadMedia
	PhaseUploadAdditionalFiles
	PhaseUploadThreads
	PhaseFinish
	PhasePersist
	PhaseNotifyPreservation
	PhaseDone
)

var phaseNames = [...]string{
	PhaseEligibility:           "eligibility",
	PhaseSubmit:                "submit",
	PhaseUploadMedia:           "upload_media",
	PhaseUploadAdditionalFiles: "upload_additional_files",
	PhaseUploadThreads:         "upload_threads",
	PhaseFinish:                "finish",
	PhasePersist:               "persist",
	PhaseNotifyPreservation:    "notify_preservation",
	PhaseDone:                  "done",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// next returns the phase that follows p. PhaseDone is terminal.
func next(p Phase) Phase {
	if p >= PhaseDone {
		return PhaseDone
	}
	return p + 1
}
