package kinematics

import (
	commonpb "go.viam.com/api/common/v1"
	"go.viam.com/rdk/spatialmath"
)

// Viam poses carry positions in millimeters.
const metersToMillimeters = 1000.0

// ToSpatialPose converts p to an rdk pose.
func ToSpatialPose(p Pose) spatialmath.Pose {
	q := spatialmath.Quaternion(p.Orientation.Quaternion())
	return spatialmath.NewPose(p.Position.Mul(metersToMillimeters), &q)
}

// FromSpatialPose converts an rdk pose back to meters.
func FromSpatialPose(p spatialmath.Pose) Pose {
	return Pose{
		Position:    p.Point().Mul(1 / metersToMillimeters),
		Orientation: RotationFromQuaternion(p.Orientation().Quaternion()),
	}
}

func ToProtobufPose(p Pose) *commonpb.Pose {
	return spatialmath.PoseToProtobuf(ToSpatialPose(p))
}

func FromProtobufPose(pb *commonpb.Pose) Pose {
	return FromSpatialPose(spatialmath.NewPoseFromProtobuf(pb))
}
