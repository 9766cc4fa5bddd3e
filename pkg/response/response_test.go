package response

import (
	"encoding/json"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"hrms/pkg/pagination"
)

func freezeClock(t *testing.T) {
	original := now
	now = func() time.Time { return time.Date(2024, 4, 1, 10, 30, 0, 0, time.FixedZone("IST", 5*3600+1800)) }
	t.Cleanup(func() { now = original })
}

func TestSuccessEnvelope(t *testing.T) {
	RegisterTestingT(t)
	freezeClock(t)

	raw, err := json.Marshal(SuccessMessage("created", map[string]string{"id": "r1"}))
	Expect(err).NotTo(HaveOccurred())
	Expect(raw).To(MatchJSON(`{
		"success": true,
		"message": "created",
		"data": {"id": "r1"},
		"timestamp": "2024-04-01T05:00:00.000Z"
	}`))
}

func TestErrorEnvelope(t *testing.T) {
	RegisterTestingT(t)
	freezeClock(t)

	raw, err := json.Marshal(Error("FORBIDDEN", "Access denied to this company", nil))
	Expect(err).NotTo(HaveOccurred())
	Expect(raw).To(MatchJSON(`{
		"success": false,
		"error": {"code": "FORBIDDEN", "message": "Access denied to this company"},
		"timestamp": "2024-04-01T05:00:00.000Z"
	}`))
}

func TestPaginatedEnvelope(t *testing.T) {
	RegisterTestingT(t)

	meta := pagination.Params{Page: 1, Limit: 20}.Meta(41)
	r := Paginated([]int{1, 2}, meta)

	Expect(r.Success).To(BeTrue())
	Expect(r.Meta.TotalPages).To(Equal(3))
	Expect(r.Meta.HasNext).To(BeTrue())
	Expect(r.Timestamp).NotTo(BeEmpty())
}
