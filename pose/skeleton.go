/*
 * SPDX-License-Identifier: Unlicense
 *
 * This is free and unencumbered software released into the public domain.
 *
 * Anyone is free to copy, modify, publish, use, compile, sell, or distribute this
 * software, either in source code form or as a compiled binary, for any purpose,
 * commercial or non-commercial, and by any means.
 *
 * For more information, please refer to <http://unlicense.org/>
 */

package pose

// KeypointNames lists the COCO keypoints in output order.
var KeypointNames = [NumKeypoints]string{
	"nose",
	"left_eye", "right_eye",
	"left_ear", "right_ear",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
}

// Edge connects two keypoint indices for drawing.
type Edge [2]int

// Skeleton is the set of limbs a renderer draws between keypoints.
var Skeleton = []Edge{
	{5, 6}, {5, 7}, {7, 9}, {6, 8}, {8, 10},
	{11, 12}, {5, 11}, {6, 12}, {11, 13}, {13, 15},
	{12, 14}, {14, 16}, {0, 1}, {0, 2}, {1, 3},
	{2, 4}, {0, 5}, {0, 6},
}
