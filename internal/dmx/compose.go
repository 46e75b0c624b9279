// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package dmx

import "dmx-life/internal/config"

// SceneSource provides read access to scene and fixture definitions
type SceneSource interface {
	Scene(name string) (config.Scene, bool)
	Fixtures() []config.Fixture
}

// Composition is the result of applying a scene
type Composition struct {
	Frame         Frame
	HighestActive int // highest channel index (0-based) the scene touches
}

// ComposeScene looks the scene up and composes it over previous.
// ok is false when the scene does not exist.
func ComposeScene(src SceneSource, name string, previous Frame) (comp Composition, ok bool) {
	scene, found := src.Scene(name)
	if !found {
		return Composition{}, false
	}
	return Compose(scene, src.Fixtures(), previous), true
}

// Compose builds a target frame from a scene.
//
// A scene without enabled fixtures is a full overlay: the frame is exactly the scene
// values, with missing trailing channels at zero. Otherwise only the channel ranges of
// enabled fixtures are written on top of previous; everything else keeps its value.
func Compose(scene config.Scene, fixtures []config.Fixture, previous Frame) Composition {
	if len(scene.EnabledFixtures) == 0 {
		var f Frame
		for ch, v := range scene.Channels {
			if ch >= UniverseSize {
				break
			}
			f[ch] = Clamp(v)
		}
		return Composition{Frame: f, HighestActive: UniverseSize - 1}
	}

	enabled := make(map[string]struct{}, len(scene.EnabledFixtures))
	for _, name := range scene.EnabledFixtures {
		enabled[name] = struct{}{}
	}

	comp := Composition{Frame: previous}
	for _, fx := range fixtures {
		if _, ok := enabled[fx.Name]; !ok {
			continue
		}

		first := fx.StartChannel - 1
		last := first + fx.ChannelCount - 1
		if first < 0 {
			first = 0
		}
		if last >= UniverseSize {
			last = UniverseSize - 1
		}
		if first > last {
			continue
		}

		for ch := first; ch <= last && ch < len(scene.Channels); ch++ {
			comp.Frame[ch] = Clamp(scene.Channels[ch])
		}
		if last > comp.HighestActive {
			comp.HighestActive = last
		}
	}

	return comp
}
