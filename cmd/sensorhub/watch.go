package main

import (
	"log"
	"sync"
	"time"

	"github.com/banshee-data/sensorhub/internal/sensors"
)

// watchInterval limits how often a watched sensor's reading is logged.
const watchInterval = time.Second

// startWatching switches on a logging monitor for each kind and returns a
// function that switches them all off.
func startWatching(hub *sensors.Hub, kinds []sensors.Kind) func() {
	var closers []func() error
	for _, k := range kinds {
		closeFn, err := startWatch(hub, k)
		if err != nil {
			log.Printf("cannot watch %s: %v", k, err)
			continue
		}
		closers = append(closers, closeFn)
	}
	return func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Printf("failed to stop watching: %v", err)
			}
		}
	}
}

func startWatch(hub *sensors.Hub, k sensors.Kind) (func() error, error) {
	switch k {
	case sensors.Accelerometer:
		return watchSource[sensors.AccelerometerReading](k, hub.Accelerometer)
	case sensors.Gyroscope:
		return watchSource[sensors.GyroscopeReading](k, hub.Gyroscope)
	case sensors.Magnetometer:
		return watchSource[sensors.MagnetometerReading](k, hub.Magnetometer)
	case sensors.Barometer:
		return watchSource[sensors.BarometerReading](k, hub.Barometer)
	case sensors.Compass:
		return watchSource[sensors.CompassReading](k, hub.Compass)
	default:
		return watchSource[sensors.OrientationReading](k, hub.Orientation)
	}
}

// watchSource logs at most one reading per watchInterval from src.
func watchSource[T any](k sensors.Kind, src sensors.Source[T]) (func() error, error) {
	var (
		mu   sync.Mutex
		last time.Time
	)
	mon := sensors.NewMonitor[T](k, src, func(r T) {
		mu.Lock()
		defer mu.Unlock()
		if time.Since(last) < watchInterval {
			return
		}
		last = time.Now()
		log.Printf("%s: %+v", k, r)
	})
	err := mon.SetMonitoring(true)
	log.Print(mon.Status())
	if err != nil {
		return nil, err
	}
	return mon.Close, nil
}
