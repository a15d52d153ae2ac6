package main

import (
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"

	kinematics "github.com/julimercado10/robot-arm-kinematics"
)

func main() {
	// ModularMain can take multiple APIModel arguments, if your module implements multiple models.
	module.ModularMain(
		resource.APIModel{API: arm.API, Model: kinematics.DHArmModel},
	)
}
