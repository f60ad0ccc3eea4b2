package interviewapi

import "github.com/careerforge/careerforge/internal/models"

// Kind is the candidate-facing interview vocabulary.
type Kind string

const (
	KindMock      Kind = "mock"
	KindScreening Kind = "screening"
	KindTechnical Kind = "technical"
)

func (k Kind) Valid() bool {
	return k == KindMock || k == KindScreening || k == KindTechnical
}

// The mapping is lossy: system-design has no kind of its own and reads back
// as technical, and unknown values fall back to mock/behavioral.
var (
	kindToServer = map[Kind]models.InterviewType{
		KindMock:      models.TypeBehavioral,
		KindScreening: models.TypeHR,
		KindTechnical: models.TypeTechnical,
	}
	serverToKind = map[models.InterviewType]Kind{
		models.TypeBehavioral:   KindMock,
		models.TypeHR:           KindScreening,
		models.TypeTechnical:    KindTechnical,
		models.TypeSystemDesign: KindTechnical,
	}
)

func ServerType(k Kind) models.InterviewType {
	if t, ok := kindToServer[k]; ok {
		return t
	}
	return models.TypeBehavioral
}

func KindOf(t models.InterviewType) Kind {
	if k, ok := serverToKind[t]; ok {
		return k
	}
	// already in client vocabulary
	if k := Kind(t); k.Valid() {
		return k
	}
	return KindMock
}
