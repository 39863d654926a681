package actions

import "context"

// Vehicle action names and results.
const (
	StartVehicle = "start_vehicle"
	StopVehicle  = "stop_vehicle"

	VehicleStarted = "车辆已启动。"
	VehicleStopped = "车辆已关闭。"
)

// VehicleActions returns the start and stop vehicle actions. They are
// placeholders for the real vehicle control calls.
func VehicleActions() []Action {
	return []Action{
		{
			Name:        StartVehicle,
			Description: "启动车辆",
			Triggers:    []string{"启动"},
			Run: func(context.Context, map[string]any) (string, error) {
				return VehicleStarted, nil
			},
		},
		{
			Name:        StopVehicle,
			Description: "关闭车辆",
			Triggers:    []string{"关闭"},
			Run: func(context.Context, map[string]any) (string, error) {
				return VehicleStopped, nil
			},
		},
	}
}
