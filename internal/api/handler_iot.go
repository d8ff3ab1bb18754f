package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"classroom-occupancy-backend/internal/occupancy"
)

// flexValue accepts a sensor value as a JSON number or boolean. Boolean
// sensors report true/false, counting sensors report head counts.
type flexValue float64

func (v *flexValue) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*v = 1
		} else {
			*v = 0
		}
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("value must be a number or boolean")
	}
	*v = flexValue(f)
	return nil
}

type sensorDataRequest struct {
	SensorCode        string     `json:"sensorCode"`
	Value             *flexValue `json:"value"`
	Occupancy         *flexValue `json:"occupancy"`
	Type              string     `json:"type"`
	ClassroomID       string     `json:"classroomId"`
	ClassroomFullName string     `json:"classroomFullName"`
	Timestamp         *time.Time `json:"timestamp"`
}

// toReading maps the wire payload onto a domain reading. "occupancy" is the
// legacy field name; "value" wins when both are present.
func (r sensorDataRequest) toReading() occupancy.SensorReading {
	reading := occupancy.SensorReading{
		SensorCode:        r.SensorCode,
		ClassroomID:       r.ClassroomID,
		ClassroomFullName: r.ClassroomFullName,
		Type:              r.Type,
	}
	if r.Value != nil {
		v := float64(*r.Value)
		reading.Value = &v
	} else if r.Occupancy != nil {
		v := float64(*r.Occupancy)
		reading.Value = &v
	}
	if r.Timestamp != nil {
		reading.Timestamp = r.Timestamp.UTC()
	}
	return reading
}

// PostSensorData ingests a single sensor reading.
func (h *Handler) PostSensorData(c *gin.Context) {
	var req sensorDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	status, err := h.engine.ProcessReading(c.Request.Context(), req.toReading())
	if err != nil {
		var vErr *occupancy.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": vErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "error processing sensor data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "sensor data processed",
		"data":    status,
	})
}

type bulkResult struct {
	SensorCode string            `json:"sensorCode"`
	Status     *occupancy.Status `json:"status,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// PostBulkSensorData ingests an array of sensor readings. Readings are
// processed independently; one bad reading does not fail the batch.
func (h *Handler) PostBulkSensorData(c *gin.Context) {
	var reqs []sensorDataRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "payload must be an array of sensor readings"})
		return
	}

	results := make([]bulkResult, 0, len(reqs))
	for _, req := range reqs {
		result := bulkResult{SensorCode: req.SensorCode}
		status, err := h.engine.ProcessReading(c.Request.Context(), req.toReading())
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Status = status
		}
		results = append(results, result)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"processed": len(results),
		"results":   results,
	})
}

// GetOccupancy returns the current occupancy of every classroom with an
// active sensor. ?status=occupied|available narrows the result.
func (h *Handler) GetOccupancy(c *gin.Context) {
	filter := c.Query("status")
	switch filter {
	case "", occupancy.FilterOccupied, occupancy.FilterAvailable:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "status must be occupied or available"})
		return
	}

	statuses, err := h.engine.GetAllClassroomsOccupancy(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "error getting occupancy data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"timestamp":  time.Now().UTC(),
		"classrooms": statuses,
	})
}

// GetClassroomOccupancy returns the current occupancy of one classroom.
func (h *Handler) GetClassroomOccupancy(c *gin.Context) {
	classroomID := c.Param("classroomId")

	status, err := h.engine.GetClassroomOccupancy(c.Request.Context(), classroomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "error getting occupancy data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"timestamp": time.Now().UTC(),
		"occupancy": status,
	})
}

// GetClassroomHistory returns aggregated occupancy history for a classroom.
// from/to are RFC 3339; interval is seconds (default 15 minutes, last 24h).
func (h *Handler) GetClassroomHistory(c *gin.Context) {
	classroomID := c.Param("classroomId")

	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	interval := 15 * time.Minute

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "from must be RFC 3339"})
			return
		}
		from = parsed.UTC()
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "to must be RFC 3339"})
			return
		}
		to = parsed.UTC()
	}
	if raw := c.Query("interval"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "interval must be a positive number of seconds"})
			return
		}
		interval = time.Duration(seconds) * time.Second
	}
	if !from.Before(to) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "from must be before to"})
		return
	}

	history, err := h.engine.GetOccupancyHistory(c.Request.Context(), classroomID, from, to, interval)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "error getting occupancy history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"classroomId": classroomID,
		"from":        from,
		"to":          to,
		"history":     history,
	})
}
