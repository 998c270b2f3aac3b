// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package redfishtest

// Source paths of the resources AddRack creates.
const (
	SystemPath         = Root + "/Systems/1"
	ProcessorPath      = SystemPath + "/Processors/1"
	MemoryPath         = SystemPath + "/Memory/1"
	NICPath            = SystemPath + "/EthernetInterfaces/1"
	VLANPath           = NICPath + "/VLANs/1"
	ComputeChassisPath = Root + "/Chassis/1"
	LocalDrivePath     = ComputeChassisPath + "/Drives/1"
	DrawerPath         = Root + "/Chassis/2"
	PCIeDrivePath      = DrawerPath + "/Drives/1"
	PCIeFabricPath     = Root + "/Fabrics/PCIe"
	InitiatorPath      = PCIeFabricPath + "/Endpoints/1"
	PCIeTargetPath     = PCIeFabricPath + "/Endpoints/2"
	NVMeFabricPath     = Root + "/Fabrics/NVMe"
	NVMeTargetPath     = NVMeFabricPath + "/Endpoints/1"
	StorageServicePath = Root + "/StorageServices/1"
	VolumePath         = StorageServicePath + "/Volumes/1"
	SwitchPath         = Root + "/EthernetSwitches/1"
	SwitchPortPath     = SwitchPath + "/Ports/1"

	SystemUUID = "b3c1d2e4-5f60-4a7b-8c9d-0e1f2a3b4c5d"
	NICMAC     = "00:11:22:33:44:55"
	CableID    = "cable-1"
	VolumeNQN  = "nqn.2014-08.org.nvmexpress:uuid:vol-1"
)

type doc = map[string]any

func ref(p string) doc { return doc{"@odata.id": p} }

func refs(paths ...string) []doc {
	out := make([]doc, 0, len(paths))
	for _, p := range paths {
		out = append(out, ref(p))
	}
	return out
}

var enabledOK = doc{"State": "Enabled", "Health": "OK", "HealthRollup": "OK"}

// AddRack populates the service with one computer system, its local and
// PCIe attached drives, a PCIe and an NVMe over fabrics fabric, a volume
// and the switch port the system's NIC is cabled to.
func (s *Service) AddRack() {
	boot := doc{"BootSourceOverrideEnabled": "Disabled", "BootSourceOverrideTarget": "None"}
	boot["BootSourceOverrideTarget@Redfish.AllowableValues"] = []string{"None", "Pxe", "Hdd"}

	s.Add(SystemPath, doc{
		"Name":               "Compute System 1",
		"UUID":               SystemUUID,
		"SystemType":         "Physical",
		"PowerState":         "Off",
		"Status":             enabledOK,
		"Boot":               boot,
		"ProcessorSummary":   doc{"Count": 1, "Model": "Intel Xeon"},
		"MemorySummary":      doc{"TotalSystemMemoryGiB": 16},
		"TrustedModules":     []doc{{"InterfaceType": "TPM2_0", "Status": enabledOK}},
		"Processors":         ref(SystemPath + "/Processors"),
		"Memory":             ref(SystemPath + "/Memory"),
		"EthernetInterfaces": ref(SystemPath + "/EthernetInterfaces"),
		"Links":              doc{"Chassis": refs(ComputeChassisPath)},
		"Actions": doc{"#ComputerSystem.Reset": doc{
			"target": SystemPath + "/Actions/ComputerSystem.Reset",
			"ResetType@Redfish.AllowableValues": []string{
				"On", "ForceOff", "GracefulShutdown", "GracefulRestart", "ForceRestart",
			},
		}},
		"Oem": doc{"Intel_RackScale": doc{
			"PCIeConnectionId":                  []string{CableID},
			"TrustedExecutionTechnologyEnabled": true,
		}},
	})
	s.Add(ProcessorPath, doc{
		"Socket":         "CPU 1",
		"Model":          "Intel Xeon Gold 6148",
		"Manufacturer":   "Intel",
		"ProcessorType":  "CPU",
		"InstructionSet": "x86-64",
		"TotalCores":     20,
		"TotalThreads":   40,
		"MaxSpeedMHz":    3700,
		"Status":         enabledOK,
	})
	s.Add(MemoryPath, doc{
		"MemoryDeviceType":  "DDR4",
		"Manufacturer":      "Samsung",
		"OperatingSpeedMhz": 2666,
		"DataWidthBits":     64,
		"CapacityMiB":       16384,
		"Status":            enabledOK,
	})
	s.Add(NICPath, doc{
		"MACAddress": NICMAC,
		"SpeedMbps":  10000,
		"Status":     enabledOK,
		"VLANs":      ref(NICPath + "/VLANs"),
	})
	s.Add(VLANPath, doc{
		"VLANEnable": true,
		"VLANId":     10,
		"Oem":        doc{"Intel_RackScale": doc{"Tagged": false}},
	})

	s.Add(ComputeChassisPath, doc{
		"ChassisType": "Sled",
		"Status":      enabledOK,
		"Drives":      ref(ComputeChassisPath + "/Drives"),
		"Links":       doc{"ComputerSystems": refs(SystemPath)},
	})
	s.Add(LocalDrivePath, doc{
		"CapacityBytes":    int64(500_000_000_000),
		"Protocol":         "SATA",
		"MediaType":        "SSD",
		"SerialNumber":     "SN-LOCAL-1",
		"RotationSpeedRPM": 0,
		"Status":           enabledOK,
	})
	s.Add(DrawerPath, doc{
		"ChassisType": "Drawer",
		"Status":      enabledOK,
		"Drives":      ref(DrawerPath + "/Drives"),
		"Oem":         doc{"Intel_RackScale": doc{"PCIeConnectionId": []string{CableID}}},
	})
	s.Add(PCIeDrivePath, doc{
		"CapacityBytes": int64(1_000_000_000_000),
		"Protocol":      "NVMe",
		"MediaType":     "SSD",
		"SerialNumber":  "SN-PCIE-1",
		"Status":        enabledOK,
		"Oem":           doc{"Intel_RackScale": doc{"EraseOnDetach": true}},
	})

	s.Add(PCIeFabricPath, doc{
		"FabricType": "PCIe",
		"MaxZones":   8,
		"Status":     enabledOK,
		"Zones":      ref(PCIeFabricPath + "/Zones"),
		"Endpoints":  ref(PCIeFabricPath + "/Endpoints"),
	})
	s.Collection(PCIeFabricPath + "/Zones")
	s.Add(InitiatorPath, doc{
		"EndpointProtocol":  "PCIe",
		"Status":            enabledOK,
		"ConnectedEntities": []doc{{"EntityRole": "Initiator", "EntityLink": ref(SystemPath)}},
	})
	s.Add(PCIeTargetPath, doc{
		"EndpointProtocol":  "PCIe",
		"Status":            enabledOK,
		"ConnectedEntities": []doc{{"EntityRole": "Target", "EntityLink": ref(PCIeDrivePath)}},
	})

	s.Add(NVMeFabricPath, doc{
		"FabricType": "NVMeOverFabrics",
		"Status":     enabledOK,
		"Zones":      ref(NVMeFabricPath + "/Zones"),
		"Endpoints":  ref(NVMeFabricPath + "/Endpoints"),
	})
	s.Collection(NVMeFabricPath + "/Zones")
	s.Add(NVMeTargetPath, doc{
		"EndpointProtocol":  "NVMeOverFabrics",
		"Status":            enabledOK,
		"ConnectedEntities": []doc{{"EntityRole": "Target", "EntityLink": ref(VolumePath)}},
		"Identifiers":       []doc{{"DurableName": VolumeNQN, "DurableNameFormat": "NQN"}},
	})

	s.Add(StorageServicePath, doc{
		"Status":  enabledOK,
		"Volumes": ref(StorageServicePath + "/Volumes"),
	})
	s.Add(VolumePath, doc{
		"CapacityBytes": int64(107_374_182_400),
		"Status":        enabledOK,
		"Oem":           doc{"Intel_RackScale": doc{"Bootable": true}},
	})

	s.Add(SwitchPath, doc{
		"Status": enabledOK,
		"Ports":  ref(SwitchPath + "/Ports"),
	})
	s.Add(SwitchPortPath, doc{
		"PortId":        "sw0p1",
		"LinkSpeedMbps": 10000,
		"NeighborMAC":   NICMAC,
		"Status":        enabledOK,
	})
}

// SetStatus replaces the Status of the resource at p.
func (s *Service) SetStatus(p, state, health string) {
	s.Update(p, map[string]any{"Status": doc{"State": state, "Health": health}})
}
