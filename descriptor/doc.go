// Package descriptor defines the static metadata of a feature module: its
// identity, the modules it depends on, and the routes, navigation entries,
// dashboard widgets and settings screen it contributes once enabled.
//
// Descriptors are plain data. They are declared in Go (see package catalog)
// or in YAML and handed to a registry at process start:
//
//	assets := descriptor.Descriptor{
//	    ID:      "assets",
//	    Name:    "Assets",
//	    Version: "1.0.0",
//	    Routes:  []descriptor.Route{{Path: "/assets", Component: "AssetList"}},
//	}
//	if err := assets.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package descriptor
