package notification

import (
	"fmt"

	"github.com/golang/geo/s2"

	"reporting-service/internal/models"
)

const earthRadiusKm = 6371.0088

// Policy picks which clients hear about an incident at ref.
type Policy interface {
	Select(ref models.Point, clients []models.Recipient) []models.Recipient
}

// AllClients notifies every client with a device token.
type AllClients struct{}

func (AllClients) Select(_ models.Point, clients []models.Recipient) []models.Recipient {
	return clients
}

// Nearby notifies clients whose last known location is within RadiusKm.
// Clients without a location are left out.
type Nearby struct {
	RadiusKm float64
}

func (n Nearby) Select(ref models.Point, clients []models.Recipient) []models.Recipient {
	var out []models.Recipient
	for _, c := range clients {
		if c.Location == nil {
			continue
		}
		if DistanceKm(ref, *c.Location) <= n.RadiusKm {
			out = append(out, c)
		}
	}
	return out
}

// PolicyFromName maps a configured policy name to a Policy.
func PolicyFromName(name string, radiusKm float64) (Policy, error) {
	switch name {
	case "", "all_clients":
		return AllClients{}, nil
	case "nearby":
		if radiusKm <= 0 {
			return nil, fmt.Errorf("nearby policy needs a positive radius, got %v", radiusKm)
		}
		return Nearby{RadiusKm: radiusKm}, nil
	}
	return nil, fmt.Errorf("unknown audience policy %q", name)
}

// DistanceKm is the great-circle distance between a and b.
func DistanceKm(a, b models.Point) float64 {
	la := s2.LatLngFromDegrees(a.Lat, a.Lng)
	lb := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return la.Distance(lb).Radians() * earthRadiusKm
}
