package dashboard

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/evkuzin/planthealth/care"
	"github.com/evkuzin/planthealth/storage"
	"github.com/gin-gonic/gin"
)

const defaultWindow = 24 * time.Hour

type plantRequest struct {
	Name              string `json:"name" binding:"required,max=100"`
	Species           string `json:"species" binding:"required,max=100"`
	Persona           string `json:"persona"`
	Personality       string `json:"personality"`
	Location          string `json:"location" binding:"max=100"`
	MoistureThreshold int    `json:"moisture_threshold" binding:"omitempty,min=1,max=100"`
}

type plantStatus struct {
	Plant      *storage.Plant   `json:"plant"`
	Reading    *storage.Reading `json:"reading"`
	Evaluation *care.Evaluation `json:"evaluation"`
}

func abort(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

// plantParam loads the plant named by the :id route parameter. It writes the
// error response itself and returns nil in that case.
func (s *Server) plantParam(c *gin.Context) *storage.Plant {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("invalid plant id %q", c.Param("id")))
		return nil
	}
	plant, err := s.storage.GetPlant(c.Request.Context(), uint(id))
	if errors.Is(err, storage.ErrNotFound) {
		abort(c, http.StatusNotFound, fmt.Errorf("plant %d not found", id))
		return nil
	}
	if err != nil {
		s.logger.Errorf("cannot get plant %d: %s", id, err)
		abort(c, http.StatusInternalServerError, err)
		return nil
	}
	return plant
}

func (s *Server) listPlants(c *gin.Context) {
	plants, err := s.storage.ListPlants(c.Request.Context())
	if err != nil {
		s.logger.Errorf("cannot list plants: %s", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}
	if plants == nil {
		plants = []storage.Plant{}
	}
	c.JSON(http.StatusOK, plants)
}

func (s *Server) createPlant(c *gin.Context) {
	var req plantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := s.storage.GetPlantByName(ctx, req.Name); err == nil {
		abort(c, http.StatusConflict, fmt.Errorf("plant %s already exists", req.Name))
		return
	}
	plant := &storage.Plant{
		Name:              req.Name,
		Species:           req.Species,
		Persona:           req.Persona,
		Personality:       req.Personality,
		Location:          req.Location,
		MoistureThreshold: req.MoistureThreshold,
	}
	if err := s.storage.CreatePlant(ctx, plant); err != nil {
		s.logger.Errorf("cannot create plant: %s", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}
	s.logger.Infof("plant %s created", plant.Name)
	c.JSON(http.StatusCreated, plant)
}

func (s *Server) getPlant(c *gin.Context) {
	plant := s.plantParam(c)
	if plant == nil {
		return
	}
	status := plantStatus{Plant: plant}
	reading, err := s.storage.LatestReading(c.Request.Context(), plant.ID)
	switch {
	case err == nil:
		eval := care.Evaluate(plant.MoistureThreshold, reading.Moisture)
		status.Reading = reading
		status.Evaluation = &eval
	case !errors.Is(err, storage.ErrNotFound):
		s.logger.Errorf("cannot get reading of %s: %s", plant.Name, err)
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// windowReadings returns the readings of the plant within ?since, 24h by
// default.
func (s *Server) windowReadings(c *gin.Context) (*storage.Plant, []storage.Reading, bool) {
	plant := s.plantParam(c)
	if plant == nil {
		return nil, nil, false
	}
	window := defaultWindow
	if v := c.Query("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			abort(c, http.StatusBadRequest, fmt.Errorf("invalid window %q", v))
			return nil, nil, false
		}
		window = d
	}
	readings, err := s.storage.GetReadings(c.Request.Context(), plant.ID, time.Now().Add(-window))
	if err != nil {
		s.logger.Errorf("cannot get readings of %s: %s", plant.Name, err)
		abort(c, http.StatusInternalServerError, err)
		return nil, nil, false
	}
	if readings == nil {
		readings = []storage.Reading{}
	}
	return plant, readings, true
}

func (s *Server) readings(c *gin.Context) {
	_, readings, ok := s.windowReadings(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, readings)
}

func (s *Server) readingsCSV(c *gin.Context) {
	plant, readings, ok := s.windowReadings(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=plant-%d-readings.csv", plant.ID))
	c.Status(http.StatusOK)
	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"created_at", "moisture", "temperature"})
	for _, r := range readings {
		_ = w.Write([]string{
			r.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatFloat(r.Moisture, 'f', 1, 64),
			strconv.FormatFloat(r.Temperature, 'f', 1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		s.logger.Warnf("cannot write csv: %s", err)
	}
}
