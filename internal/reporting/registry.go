package reporting

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"reporting-service/internal/models"
)

// Constructor validates a payload and builds the kind-specific report.
type Constructor func(p Payload) (models.Report, error)

// Registry maps report kinds to their constructors.
type Registry struct {
	constructors map[models.ReportKind]Constructor
}

// NewRegistry returns a registry with the built-in kinds registered.
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[models.ReportKind]Constructor)}
	r.Register(models.KindDeviation, newDeviation)
	r.Register(models.KindDelay, newDelay)
	r.Register(models.KindFailure, newFailure)
	r.Register(models.KindOther, newOther)
	return r
}

func (r *Registry) Register(kind models.ReportKind, c Constructor) {
	r.constructors[kind] = c
}

// Create validates payload against the constructor registered for tag.
func (r *Registry) Create(tag string, payload Payload) (models.Report, error) {
	kind, ok := models.ParseReportKind(tag)
	if !ok {
		return models.Report{}, &UnknownKindError{Kind: tag}
	}
	build, ok := r.constructors[kind]
	if !ok {
		return models.Report{}, &UnknownKindError{Kind: tag}
	}

	report, err := build(payload)
	if err != nil {
		return models.Report{}, err
	}
	report.Kind = kind

	if err := applyCommon(&report, payload); err != nil {
		return models.Report{}, err
	}
	return report, nil
}

// applyCommon reads the fields shared by every kind.
func applyCommon(r *models.Report, p Payload) error {
	ext, err := p.optionalString("", "external_id", "id_reporte")
	if err != nil {
		return err
	}
	if ext != "" {
		r.ExternalID = &ext
	}

	corridor, err := p.optionalInt("affected_corridor_id", "id_corredor_afectado")
	if err != nil {
		return err
	}
	if corridor != nil {
		r.AffectedCorridorID = corridor
	}

	lat, hasLat := p["lat"]
	lng, hasLng := p["lng"]
	if hasLat && hasLng && lat != nil && lng != nil {
		pt, err := toPoint(lat, lng)
		if err != nil {
			return err
		}
		r.Reference = pt
	}
	return nil
}

func toPoint(lat, lng interface{}) (*models.Point, error) {
	la, ok := asFloat(lat)
	if !ok {
		return nil, &ValidationError{Field: "lat", Reason: "must be numeric"}
	}
	lo, ok := asFloat(lng)
	if !ok {
		return nil, &ValidationError{Field: "lng", Reason: "must be numeric"}
	}
	pt := models.Point{Lat: la, Lng: lo}
	if !pt.Valid() {
		return nil, &ValidationError{Field: "lat", Reason: "is out of range"}
	}
	return &pt, nil
}

func newDeviation(p Payload) (models.Report, error) {
	emitter, err := p.requiredInt("conductor_id")
	if err != nil {
		return models.Report{}, err
	}
	route, err := p.requiredInt("route_id", "ruta_id")
	if err != nil {
		return models.Report{}, err
	}
	affected, err := p.requiredInt("affected_stop_id", "paradero_afectado_id")
	if err != nil {
		return models.Report{}, err
	}
	alternate, err := p.optionalInt("alternate_stop_id", "paradero_alterna_id")
	if err != nil {
		return models.Report{}, err
	}
	desc, err := p.optionalString("", "description", "descripcion")
	if err != nil {
		return models.Report{}, err
	}

	alt := "No alternative"
	if alternate != nil {
		alt = fmt.Sprintf("Alternative: %d", *alternate)
	}
	msg := fmt.Sprintf("Deviation on route %d — affected stop %d. %s.%s", route, affected, alt, clause("Description", desc))

	return models.Report{
		EmitterUserID:   emitter,
		AffectedRouteID: &route,
		InitialStopID:   &affected,
		FinalStopID:     alternate,
		Description:     desc,
		Message:         msg,
	}, nil
}

func newDelay(p Payload) (models.Report, error) {
	emitter, err := p.requiredInt("conductor_id")
	if err != nil {
		return models.Report{}, err
	}
	route, err := p.requiredInt("route_id", "ruta_id")
	if err != nil {
		return models.Report{}, err
	}
	initial, err := p.requiredInt("initial_stop_id", "paradero_inicial_id")
	if err != nil {
		return models.Report{}, err
	}
	final, err := p.requiredInt("final_stop_id", "paradero_final_id")
	if err != nil {
		return models.Report{}, err
	}
	minutes, err := p.requiredInt("delay_minutes", "tiempo_retraso_min")
	if err != nil {
		return models.Report{}, err
	}
	if minutes < 0 {
		key, _, _ := p.lookup("delay_minutes", "tiempo_retraso_min")
		return models.Report{}, &ValidationError{Field: key, Reason: "must not be negative"}
	}
	desc, err := p.optionalString("", "description", "descripcion")
	if err != nil {
		return models.Report{}, err
	}

	msg := fmt.Sprintf("Delay on route %d — from stop %d to %d. Estimated delay: %d minutes.%s",
		route, initial, final, minutes, clause("Description", desc))

	return models.Report{
		EmitterUserID:   emitter,
		AffectedRouteID: &route,
		InitialStopID:   &initial,
		FinalStopID:     &final,
		DelayMinutes:    &minutes,
		Description:     desc,
		Message:         msg,
	}, nil
}

func newFailure(p Payload) (models.Report, error) {
	emitter, err := p.requiredInt("emitter_id", "id_emisor")
	if err != nil {
		return models.Report{}, err
	}
	stop, err := p.optionalString("Automatic", "stop_name", "paradero")
	if err != nil {
		return models.Report{}, err
	}
	faultType, err := p.optionalString("Unspecified", "fault_type", "tipo_falla")
	if err != nil {
		return models.Report{}, err
	}
	unit, err := p.optionalString("Unspecified", "affected_unit", "unidad_afectada")
	if err != nil {
		return models.Report{}, err
	}
	reason, err := p.optionalString("", "reason", "motivo")
	if err != nil {
		return models.Report{}, err
	}
	intervention, err := p.optionalBool(false, "requires_intervention", "requiere_intervencion")
	if err != nil {
		return models.Report{}, err
	}

	yesNo := "No"
	urgency := "does not require urgent intervention"
	if intervention {
		yesNo = "Yes"
		urgency = "requires urgent intervention"
	}

	parts := []string{
		"Failure on unit " + unit,
		"Stop: " + stop,
		"Type: " + faultType,
		"Requires intervention: " + yesNo,
	}
	if reason != "" {
		parts = append(parts, "Reason: "+reason)
	}
	msg := fmt.Sprintf("Failure on unit %s at stop %s — Type: %s (%s).%s", unit, stop, faultType, urgency, clause("Reason", reason))

	return models.Report{
		EmitterUserID:        emitter,
		Description:          strings.Join(parts, " | "),
		Message:              msg,
		IsCritical:           intervention,
		RequiresIntervention: intervention,
	}, nil
}

// newOther builds a mass alert. Everything but the text is optional.
func newOther(p Payload) (models.Report, error) {
	emitter, err := p.requiredInt("emitter_id", "id_emisor")
	if err != nil {
		return models.Report{}, err
	}
	desc, err := p.optionalString("", "description", "descripcion")
	if err != nil {
		return models.Report{}, err
	}
	if desc == "" {
		key, _, _ := p.lookup("description", "descripcion")
		return models.Report{}, missing(key)
	}
	route, err := p.optionalInt("route_id", "ruta_id")
	if err != nil {
		return models.Report{}, err
	}
	initial, err := p.optionalInt("initial_stop_id", "paradero_inicial_id")
	if err != nil {
		return models.Report{}, err
	}
	final, err := p.optionalInt("final_stop_id", "paradero_final_id")
	if err != nil {
		return models.Report{}, err
	}
	minutes, err := p.optionalInt("delay_minutes", "tiempo_retraso_min")
	if err != nil {
		return models.Report{}, err
	}
	critical, err := p.optionalBool(false, "is_critical", "es_critica")
	if err != nil {
		return models.Report{}, err
	}
	intervention, err := p.optionalBool(false, "requires_intervention", "requiere_intervencion")
	if err != nil {
		return models.Report{}, err
	}

	return models.Report{
		EmitterUserID:        emitter,
		AffectedRouteID:      route,
		InitialStopID:        initial,
		FinalStopID:          final,
		DelayMinutes:         minutes,
		Description:          desc,
		Message:              desc,
		IsCritical:           critical || intervention,
		RequiresIntervention: intervention,
	}, nil
}

func clause(label, text string) string {
	if text == "" {
		return ""
	}
	return fmt.Sprintf(" %s: %s", label, text)
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
