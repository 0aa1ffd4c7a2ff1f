package hwkit

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/hubertat/hwkit/actuators"
	"github.com/hubertat/hwkit/sensors"
	"github.com/hubertat/hwkit/telemetry"
)

const httpTimeoutsMs = 3000

type pinView struct {
	Pin  uint8  `json:"pin"`
	Mode string `json:"mode"`
}

type sensorView struct {
	Name        string              `json:"name"`
	Driver      string              `json:"driver"`
	Pin         uint8               `json:"pin"`
	Calibration sensors.Calibration `json:"calibration"`
	Calibrated  bool                `json:"calibrated"`
	Reading     *telemetry.Reading  `json:"reading,omitempty"`
	Error       string              `json:"error,omitempty"`
}

type dispenseRequest struct {
	Duration string `json:"duration"`
	Ml       uint32 `json:"ml"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (hk *HwKit) authorized(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if len(hk.HttpToken) > 0 && r.Header.Get("Authorization") != "Bearer "+hk.HttpToken {
			http.Error(w, "token mismatch", http.StatusUnauthorized)
			return
		}
		next(w, r, p)
	}
}

// Handler builds the HTTP API.
func (hk *HwKit) Handler() http.Handler {
	router := httprouter.New()

	router.GET("/pins", hk.handlePins)
	router.GET("/sensors", hk.handleSensors)
	router.GET("/sensors/:name", hk.handleSensor)
	router.POST("/sensors/:name/calibration", hk.authorized(hk.handleSetCalibration))
	router.DELETE("/sensors/:name/calibration", hk.authorized(hk.handleClearCalibration))
	router.POST("/pumps/:name/dispense", hk.authorized(hk.handleDispense))
	if hk.prom != nil {
		router.Handler(http.MethodGet, "/metrics", hk.prom.Handler())
	}

	return router
}

// StartHttp serves the API until ctx is done.
func (hk *HwKit) StartHttp(ctx context.Context) error {
	httpTimeout := httpTimeoutsMs * time.Millisecond

	server := &http.Server{
		Addr:              hk.HttpAddress,
		Handler:           hk.Handler(),
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
	}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	hk.kitLogger().Info("http api listening", "addr", hk.HttpAddress)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (hk *HwKit) handlePins(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	out := map[string][]pinView{}
	for name, d := range hk.devices {
		list := []pinView{}
		for _, res := range d.registry.Reserved() {
			list = append(list, pinView{Pin: res.Pin, Mode: res.Mode.String()})
		}
		out[name] = list
	}
	writeJSON(w, http.StatusOK, out)
}

func viewSensor(ms *MoistureSensor) sensorView {
	v := sensorView{Name: ms.Name, Driver: ms.DriverName, Pin: ms.Pin}
	if ms.sensor != nil {
		v.Calibration = ms.sensor.Calibration()
		v.Calibrated = ms.sensor.HasCalibration()
	}
	return v
}

func (hk *HwKit) handleSensors(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	list := []sensorView{}
	for _, ms := range hk.Sensors {
		v := viewSensor(ms)
		if reading, err := ms.Last(); err == nil {
			v.Reading = &reading
		}
		list = append(list, v)
	}
	writeJSON(w, http.StatusOK, list)
}

func (hk *HwKit) handleSensor(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ms := hk.FindSensor(p.ByName("name"))
	if ms == nil {
		http.Error(w, "sensor not found", http.StatusNotFound)
		return
	}

	v := viewSensor(ms)
	reading, err := ms.Read()
	if err != nil {
		v.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, v)
		return
	}
	v.Reading = &reading
	writeJSON(w, http.StatusOK, v)
}

func (hk *HwKit) handleSetCalibration(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ms := hk.FindSensor(p.ByName("name"))
	if ms == nil || ms.sensor == nil {
		http.Error(w, "sensor not found", http.StatusNotFound)
		return
	}

	var cal sensors.Calibration
	if err := json.NewDecoder(r.Body).Decode(&cal); err != nil {
		http.Error(w, "invalid calibration body", http.StatusBadRequest)
		return
	}
	if !sensors.NewCalibration(cal.DryRaw, cal.WetRaw).Valid() {
		http.Error(w, sensors.ErrInvalidCalibration.Error(), http.StatusBadRequest)
		return
	}

	err := ms.sensor.SetCalibration(cal.DryRaw, cal.WetRaw, true)
	if err != nil {
		hk.kitLogger().Error("failed to persist calibration", "sensor", ms.Name, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, viewSensor(ms))
}

func (hk *HwKit) handleClearCalibration(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ms := hk.FindSensor(p.ByName("name"))
	if ms == nil || ms.sensor == nil {
		http.Error(w, "sensor not found", http.StatusNotFound)
		return
	}

	ms.sensor.ClearCalibration()
	writeJSON(w, http.StatusOK, viewSensor(ms))
}

func (hk *HwKit) handleDispense(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	pump := hk.FindPump(p.ByName("name"))
	if pump == nil || pump.pump == nil {
		http.Error(w, "pump not found", http.StatusNotFound)
		return
	}

	var req dispenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid dispense body", http.StatusBadRequest)
		return
	}

	var d time.Duration
	if len(strings.TrimSpace(req.Duration)) > 0 {
		var err error
		if d, err = time.ParseDuration(req.Duration); err != nil {
			http.Error(w, "invalid duration", http.StatusBadRequest)
			return
		}
	}

	started, err := pump.Dispense(d, req.Ml)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"pump": pump.Name, "duration": started.String()})
	case errors.Is(err, actuators.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, actuators.ErrInvalidDuration),
		errors.Is(err, actuators.ErrExceedsMaxRunTime),
		errors.Is(err, actuators.ErrNotCalibrated):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
